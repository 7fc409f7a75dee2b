package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogProduct is the read model of the supplier catalog used for barcode resolution.
type CatalogProduct struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Barcode     string    `gorm:"column:barcode;not null;uniqueIndex:ux_catalog_products_barcode"`
	OuterCode   *string   `gorm:"column:outer_code;index:idx_catalog_products_outer_code"`
	CaseUnits   *int      `gorm:"column:case_units"`
	Description string    `gorm:"column:description;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *CatalogProduct) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
