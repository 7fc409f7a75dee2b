package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DeliveryScan is one physical scan action. Rows are append-only.
type DeliveryScan struct {
	ID             int64             `gorm:"column:id;primaryKey;autoIncrement"`
	DeliveryID     uuid.UUID         `gorm:"column:delivery_id;type:uuid;not null;index:idx_delivery_scans_delivery"`
	DeliveryItemID *uuid.UUID        `gorm:"column:delivery_item_id;type:uuid;index:idx_delivery_scans_item"`
	Barcode        string            `gorm:"column:barcode;not null;index:idx_delivery_scans_barcode"`
	Quantity       int               `gorm:"column:quantity;not null"`
	Matched        bool              `gorm:"column:matched;not null"`
	ScannedBy      string            `gorm:"column:scanned_by;not null"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt      time.Time         `gorm:"column:created_at;not null"`
}
