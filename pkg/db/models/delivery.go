package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/pkg/enums"
)

// Delivery is one inbound shipment from a supplier.
type Delivery struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	DeliveryNumber string               `gorm:"column:delivery_number;not null;uniqueIndex:ux_deliveries_number"`
	SupplierID     uuid.UUID            `gorm:"column:supplier_id;type:uuid;not null;index:idx_deliveries_supplier"`
	DeliveryDate   time.Time            `gorm:"column:delivery_date;not null"`
	Status         enums.DeliveryStatus `gorm:"column:status;type:text;not null;index:idx_deliveries_status"`
	TotalExpected  decimal.Decimal      `gorm:"column:total_expected;type:numeric(14,4);not null"`
	TotalReceived  decimal.Decimal      `gorm:"column:total_received;type:numeric(14,4);not null"`
	ImportData     datatypes.JSON       `gorm:"column:import_data"`
	Notes          *string              `gorm:"column:notes"`
	CompletedAt    *time.Time           `gorm:"column:completed_at"`
	CancelledAt    *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Items []DeliveryItem `gorm:"foreignKey:DeliveryID"`
}

func (d *Delivery) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return nil
}
