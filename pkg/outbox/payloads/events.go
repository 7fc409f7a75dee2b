package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/goodsin-backend/pkg/enums"
)

// DeliveryCreatedEvent announces a draft delivery ready for receiving.
type DeliveryCreatedEvent struct {
	DeliveryID     uuid.UUID `json:"delivery_id"`
	DeliveryNumber string    `json:"delivery_number"`
	SupplierID     uuid.UUID `json:"supplier_id"`
	ItemCount      int       `json:"item_count"`
	TotalExpected  string    `json:"total_expected"`
}

// DeliveryScanRecordedEvent is emitted for every matched scan.
type DeliveryScanRecordedEvent struct {
	DeliveryID      uuid.UUID      `json:"delivery_id"`
	DeliveryItemID  uuid.UUID      `json:"delivery_item_id"`
	ScanID          int64          `json:"scan_id"`
	SKU             string         `json:"sku"`
	Barcode         string         `json:"barcode"`
	ScanType        enums.ScanType `json:"scan_type"`
	Quantity        int            `json:"quantity"`
	UnitsEquivalent int            `json:"units_equivalent"`
	ScannedBy       string         `json:"scanned_by"`
}

// DeliveryBarcodeUnmatchedEvent surfaces a scan that matched no line.
type DeliveryBarcodeUnmatchedEvent struct {
	DeliveryID     uuid.UUID `json:"delivery_id"`
	ScanID         int64     `json:"scan_id"`
	Barcode        string    `json:"barcode"`
	Quantity       int       `json:"quantity"`
	ScannedBy      string    `json:"scanned_by"`
	KnownToCatalog bool      `json:"known_to_catalog"`
}

// DeliveryStatusChangedEvent records a lifecycle transition.
type DeliveryStatusChangedEvent struct {
	DeliveryID           uuid.UUID            `json:"delivery_id"`
	DeliveryNumber       string               `json:"delivery_number"`
	From                 enums.DeliveryStatus `json:"from"`
	To                   enums.DeliveryStatus `json:"to"`
	CompletionPercentage float64              `json:"completion_percentage"`
	MissingItemIDs       []uuid.UUID          `json:"missing_item_ids,omitempty"`
}

// DeliveryItemAdjustedEvent captures an operator override of received counters.
type DeliveryItemAdjustedEvent struct {
	DeliveryID           uuid.UUID                `json:"delivery_id"`
	DeliveryItemID       uuid.UUID                `json:"delivery_item_id"`
	PreviousCaseReceived *int                     `json:"previous_case_received,omitempty"`
	PreviousUnitReceived *int                     `json:"previous_unit_received,omitempty"`
	CaseReceived         *int                     `json:"case_received,omitempty"`
	UnitReceived         *int                     `json:"unit_received,omitempty"`
	Status               enums.DeliveryItemStatus `json:"status"`
	Reason               string                   `json:"reason,omitempty"`
	AdjustedBy           string                   `json:"adjusted_by"`
}
