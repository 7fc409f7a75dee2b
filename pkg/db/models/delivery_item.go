package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	"github.com/angelmondragon/goodsin-backend/pkg/receiving"
)

// DeliveryItem is one ordered SKU within a delivery. Received counters are
// only ever moved by atomic SQL increments or an explicit operator override.
type DeliveryItem struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	DeliveryID   uuid.UUID          `gorm:"column:delivery_id;type:uuid;not null;uniqueIndex:ux_delivery_items_delivery_sku,priority:1"`
	SKU          string             `gorm:"column:sku;not null;uniqueIndex:ux_delivery_items_delivery_sku,priority:2"`
	ProductID    *uuid.UUID         `gorm:"column:product_id;type:uuid"`
	Description  string             `gorm:"column:description;not null"`
	QuantityType enums.QuantityType `gorm:"column:quantity_type;type:text;not null"`

	OrderedQuantity  *int `gorm:"column:ordered_quantity"`
	ReceivedQuantity *int `gorm:"column:received_quantity"`

	CaseOrderedQuantity  *int `gorm:"column:case_ordered_quantity"`
	CaseReceivedQuantity *int `gorm:"column:case_received_quantity"`
	UnitsPerCase         *int `gorm:"column:units_per_case"`
	SupplierCaseUnits    *int `gorm:"column:supplier_case_units"`

	UnitOrderedQuantity  *int `gorm:"column:unit_ordered_quantity"`
	UnitReceivedQuantity *int `gorm:"column:unit_received_quantity"`

	Barcode   *string `gorm:"column:barcode;index:idx_delivery_items_barcode"`
	OuterCode *string `gorm:"column:outer_code;index:idx_delivery_items_outer_code"`

	UnitCost          decimal.Decimal     `gorm:"column:unit_cost;type:numeric(14,4);not null"`
	SalePrice         decimal.Decimal     `gorm:"column:sale_price;type:numeric(14,4);not null"`
	TaxRate           decimal.Decimal     `gorm:"column:tax_rate;type:numeric(7,4);not null"`
	NormalizedTaxRate decimal.NullDecimal `gorm:"column:normalized_tax_rate;type:numeric(7,4)"`

	Status                 enums.DeliveryItemStatus `gorm:"column:status;type:text;not null"`
	IsNewProduct           bool                     `gorm:"column:is_new_product;not null"`
	BarcodeRetrievalFailed bool                     `gorm:"column:barcode_retrieval_failed;not null"`
	BarcodeRetrievalError  *string                  `gorm:"column:barcode_retrieval_error"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *DeliveryItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Line projects the quantity columns for the reconciliation rules.
func (i DeliveryItem) Line() receiving.Line {
	return receiving.Line{
		QuantityType:         i.QuantityType,
		OrderedQuantity:      i.OrderedQuantity,
		ReceivedQuantity:     i.ReceivedQuantity,
		CaseOrderedQuantity:  i.CaseOrderedQuantity,
		CaseReceivedQuantity: i.CaseReceivedQuantity,
		UnitsPerCase:         i.UnitsPerCase,
		SupplierCaseUnits:    i.SupplierCaseUnits,
		UnitOrderedQuantity:  i.UnitOrderedQuantity,
		UnitReceivedQuantity: i.UnitReceivedQuantity,
	}
}
