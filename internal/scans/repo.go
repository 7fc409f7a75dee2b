package scans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
)

// Filter narrows ledger queries. Zero values are ignored.
type Filter struct {
	DeliveryID *uuid.UUID
	ItemID     *uuid.UUID
	Barcode    string
	Matched    *bool
	Since      *time.Time
	// BeforeID pages backwards through the ledger (exclusive).
	BeforeID int64
	Limit    int
}

// Summary counts ledger rows for one delivery.
type Summary struct {
	Total     int64
	Matched   int64
	Unmatched int64
	LastScan  *time.Time
}

// Repository persists the append-only scan ledger. There is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, scan *models.DeliveryScan) error
	List(ctx context.Context, filter Filter) ([]models.DeliveryScan, error)
	Summarize(ctx context.Context, deliveryID uuid.UUID) (Summary, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, scan *models.DeliveryScan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.DeliveryScan, error) {
	q := r.db.WithContext(ctx).Model(&models.DeliveryScan{})
	if filter.DeliveryID != nil {
		q = q.Where("delivery_id = ?", *filter.DeliveryID)
	}
	if filter.ItemID != nil {
		q = q.Where("delivery_item_id = ?", *filter.ItemID)
	}
	if filter.Barcode != "" {
		q = q.Where("barcode = ?", filter.Barcode)
	}
	if filter.Matched != nil {
		q = q.Where("matched = ?", *filter.Matched)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if filter.BeforeID > 0 {
		q = q.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.DeliveryScan
	if err := q.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Summarize(ctx context.Context, deliveryID uuid.UUID) (Summary, error) {
	var rows []struct {
		Matched bool
		Count   int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.DeliveryScan{}).
		Select("matched, COUNT(*) AS count").
		Where("delivery_id = ?", deliveryID).
		Group("matched").
		Scan(&rows).Error; err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, row := range rows {
		summary.Total += row.Count
		if row.Matched {
			summary.Matched += row.Count
		} else {
			summary.Unmatched += row.Count
		}
	}
	if summary.Total == 0 {
		return summary, nil
	}

	var last models.DeliveryScan
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("id DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return Summary{}, err
	}
	if last.ID != 0 {
		ts := last.CreatedAt
		summary.LastScan = &ts
	}
	return summary, nil
}
