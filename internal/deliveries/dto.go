package deliveries

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/goodsin-backend/internal/scans"
	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	"github.com/angelmondragon/goodsin-backend/pkg/pagination"
	"github.com/angelmondragon/goodsin-backend/pkg/receiving"
)

// CreateDeliveryInput is a confirmed supplier order ready to be received.
type CreateDeliveryInput struct {
	DeliveryNumber string            `json:"delivery_number" validate:"required,max=64"`
	SupplierID     uuid.UUID         `json:"supplier_id"`
	DeliveryDate   time.Time         `json:"delivery_date"`
	Notes          *string           `json:"notes,omitempty"`
	ImportData     json.RawMessage   `json:"import_data,omitempty"`
	Items          []CreateItemInput `json:"items" validate:"required,min=1,dive"`
}

type CreateItemInput struct {
	SKU                 string             `json:"sku" validate:"required,max=64"`
	ProductID           *uuid.UUID         `json:"product_id,omitempty"`
	Description         string             `json:"description" validate:"required"`
	QuantityType        enums.QuantityType `json:"quantity_type" validate:"required,oneof=unit case mixed"`
	OrderedQuantity     *int               `json:"ordered_quantity,omitempty" validate:"omitempty,gte=0"`
	CaseOrderedQuantity *int               `json:"case_ordered_quantity,omitempty" validate:"omitempty,gte=0"`
	UnitsPerCase        *int               `json:"units_per_case,omitempty" validate:"omitempty,gte=0"`
	SupplierCaseUnits   *int               `json:"supplier_case_units,omitempty" validate:"omitempty,gte=0"`
	UnitOrderedQuantity *int               `json:"unit_ordered_quantity,omitempty" validate:"omitempty,gte=0"`
	Barcode             *string            `json:"barcode,omitempty"`
	OuterCode           *string            `json:"outer_code,omitempty"`
	UnitCost            decimal.Decimal    `json:"unit_cost"`
	SalePrice           decimal.Decimal    `json:"sale_price"`
	TaxRate             decimal.Decimal    `json:"tax_rate"`
	NormalizedTaxRate   *decimal.Decimal   `json:"normalized_tax_rate,omitempty"`
}

// ScanInput is a raw barcode read from a handheld scanner.
type ScanInput struct {
	DeliveryID uuid.UUID
	Barcode    string
	Quantity   int
	ScannedBy  string
	Device     string
}

// ScanResult reports what a scan did. Unmatched scans carry no item.
type ScanResult struct {
	Scan           scans.View           `json:"scan"`
	Matched        bool                 `json:"matched"`
	ScanType       enums.ScanType       `json:"scan_type"`
	UnitsApplied   int                  `json:"units_applied"`
	KnownToCatalog bool                 `json:"known_to_catalog"`
	DeliveryStatus enums.DeliveryStatus `json:"delivery_status"`
	Item           *ItemView            `json:"item,omitempty"`
}

// AdjustInput replaces the received counters of one line. Nil leaves a counter untouched.
type AdjustInput struct {
	DeliveryID   uuid.UUID
	ItemID       uuid.UUID
	CaseReceived *int
	UnitReceived *int
	Reason       string
	AdjustedBy   string
}

type ListParams struct {
	Status     *enums.DeliveryStatus
	SupplierID *uuid.UUID
	pagination.Params
}

type ListResult struct {
	Deliveries []DeliveryView `json:"deliveries"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ItemView is a line with every derived figure resolved.
type ItemView struct {
	ID                     uuid.UUID                `json:"id"`
	DeliveryID             uuid.UUID                `json:"delivery_id"`
	SKU                    string                   `json:"sku"`
	ProductID              *uuid.UUID               `json:"product_id,omitempty"`
	Description            string                   `json:"description"`
	QuantityType           enums.QuantityType       `json:"quantity_type"`
	OrderedQuantity        *int                     `json:"ordered_quantity,omitempty"`
	ReceivedQuantity       *int                     `json:"received_quantity,omitempty"`
	CaseOrderedQuantity    *int                     `json:"case_ordered_quantity,omitempty"`
	CaseReceivedQuantity   *int                     `json:"case_received_quantity,omitempty"`
	UnitsPerCase           *int                     `json:"units_per_case,omitempty"`
	SupplierCaseUnits      *int                     `json:"supplier_case_units,omitempty"`
	UnitOrderedQuantity    *int                     `json:"unit_ordered_quantity,omitempty"`
	UnitReceivedQuantity   *int                     `json:"unit_received_quantity,omitempty"`
	EffectiveCaseUnits     int                      `json:"effective_case_units"`
	TotalOrderedUnits      int                      `json:"total_ordered_units"`
	TotalReceivedUnits     int                      `json:"total_received_units"`
	Status                 enums.DeliveryItemStatus `json:"status"`
	Barcode                *string                  `json:"barcode,omitempty"`
	OuterCode              *string                  `json:"outer_code,omitempty"`
	UnitCost               decimal.Decimal          `json:"unit_cost"`
	SalePrice              decimal.Decimal          `json:"sale_price"`
	TaxRate                decimal.Decimal          `json:"tax_rate"`
	RecommendedTaxRate     decimal.Decimal          `json:"recommended_tax_rate"`
	PotentialDepositScheme bool                     `json:"potential_deposit_scheme"`
	ExpectedCost           decimal.Decimal          `json:"expected_cost"`
	ReceivedCost           decimal.Decimal          `json:"received_cost"`
	IsNewProduct           bool                     `json:"is_new_product"`
	BarcodeRetrievalFailed bool                     `json:"barcode_retrieval_failed"`
	BarcodeRetrievalError  *string                  `json:"barcode_retrieval_error,omitempty"`
}

type DeliveryView struct {
	ID                   uuid.UUID            `json:"id"`
	DeliveryNumber       string               `json:"delivery_number"`
	SupplierID           uuid.UUID            `json:"supplier_id"`
	DeliveryDate         time.Time            `json:"delivery_date"`
	Status               enums.DeliveryStatus `json:"status"`
	TotalExpected        decimal.Decimal      `json:"total_expected"`
	TotalReceived        decimal.Decimal      `json:"total_received"`
	CompletionPercentage *float64             `json:"completion_percentage,omitempty"`
	Notes                *string              `json:"notes,omitempty"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
	CancelledAt          *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	Items                []ItemView           `json:"items,omitempty"`
}

// ProgressView is the live completion summary of a delivery.
type ProgressView struct {
	DeliveryID           uuid.UUID                        `json:"delivery_id"`
	Status               enums.DeliveryStatus             `json:"status"`
	ItemCount            int                              `json:"item_count"`
	CompletionPercentage float64                          `json:"completion_percentage"`
	StatusCounts         map[enums.DeliveryItemStatus]int `json:"status_counts"`
	OrderedUnits         int                              `json:"ordered_units"`
	ReceivedUnits        int                              `json:"received_units"`
	ScanCount            int64                            `json:"scan_count"`
	UnmatchedScanCount   int64                            `json:"unmatched_scan_count"`
	LastScanAt           *time.Time                       `json:"last_scan_at,omitempty"`
}

// DiscrepancyReport lists every line whose received quantity differs from the order.
type DiscrepancyReport struct {
	Delivery DeliveryView `json:"delivery"`
	Lines    []ItemView   `json:"lines"`
}

func newItemView(item models.DeliveryItem, deliveryStatus enums.DeliveryStatus) ItemView {
	line := item.Line()
	ordered := receiving.TotalOrderedUnits(line)
	received := receiving.TotalReceivedUnits(line)
	return ItemView{
		ID:                     item.ID,
		DeliveryID:             item.DeliveryID,
		SKU:                    item.SKU,
		ProductID:              item.ProductID,
		Description:            item.Description,
		QuantityType:           item.QuantityType,
		OrderedQuantity:        item.OrderedQuantity,
		ReceivedQuantity:       item.ReceivedQuantity,
		CaseOrderedQuantity:    item.CaseOrderedQuantity,
		CaseReceivedQuantity:   item.CaseReceivedQuantity,
		UnitsPerCase:           item.UnitsPerCase,
		SupplierCaseUnits:      item.SupplierCaseUnits,
		UnitOrderedQuantity:    item.UnitOrderedQuantity,
		UnitReceivedQuantity:   item.UnitReceivedQuantity,
		EffectiveCaseUnits:     receiving.EffectiveCaseUnits(line),
		TotalOrderedUnits:      ordered,
		TotalReceivedUnits:     received,
		Status:                 receiving.DisplayStatus(item.Status, deliveryStatus),
		Barcode:                item.Barcode,
		OuterCode:              item.OuterCode,
		UnitCost:               item.UnitCost,
		SalePrice:              item.SalePrice,
		TaxRate:                item.TaxRate,
		RecommendedTaxRate:     receiving.RecommendedTaxRate(item.TaxRate, item.NormalizedTaxRate),
		PotentialDepositScheme: receiving.IsPotentialDepositScheme(item.TaxRate),
		ExpectedCost:           receiving.LineCost(ordered, item.UnitCost),
		ReceivedCost:           receiving.LineCost(received, item.UnitCost),
		IsNewProduct:           item.IsNewProduct,
		BarcodeRetrievalFailed: item.BarcodeRetrievalFailed,
		BarcodeRetrievalError:  item.BarcodeRetrievalError,
	}
}

func newDeliveryView(d models.Delivery, items []models.DeliveryItem, withItems bool) DeliveryView {
	view := DeliveryView{
		ID:             d.ID,
		DeliveryNumber: d.DeliveryNumber,
		SupplierID:     d.SupplierID,
		DeliveryDate:   d.DeliveryDate,
		Status:         d.Status,
		TotalExpected:  d.TotalExpected,
		TotalReceived:  d.TotalReceived,
		Notes:          d.Notes,
		CompletedAt:    d.CompletedAt,
		CancelledAt:    d.CancelledAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if withItems {
		pct := receiving.CompletionPercentage(itemStatuses(items))
		view.CompletionPercentage = &pct
		view.Items = make([]ItemView, 0, len(items))
		for _, item := range items {
			view.Items = append(view.Items, newItemView(item, d.Status))
		}
	}
	return view
}

func itemStatuses(items []models.DeliveryItem) []enums.DeliveryItemStatus {
	statuses := make([]enums.DeliveryItemStatus, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, item.Status)
	}
	return statuses
}
