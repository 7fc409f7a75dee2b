package deliveries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/goodsin-backend/pkg/db"
	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	"github.com/angelmondragon/goodsin-backend/pkg/pagination"
	"github.com/angelmondragon/goodsin-backend/pkg/receiving"
)

const (
	columnCaseReceived = "case_received_quantity"
	columnUnitReceived = "unit_received_quantity"
)

// ListFilter narrows delivery listings.
type ListFilter struct {
	Status     *enums.DeliveryStatus
	SupplierID *uuid.UUID
	Cursor     *pagination.Cursor
	Limit      int
}

// CatalogUpdate carries what barcode resolution learned about a line.
type CatalogUpdate struct {
	ProductID              *uuid.UUID
	SupplierCaseUnits      *int
	IsNewProduct           *bool
	BarcodeRetrievalFailed *bool
	BarcodeRetrievalError  *string
}

// ReceivedCounters is a full overwrite of a line's received columns.
type ReceivedCounters struct {
	Cases  int
	Units  int
	Legacy int
}

// Repository persists deliveries and their lines. Received counters are only
// changed through IncrementReceived or SetReceived.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	FindDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	FindDeliveryLocked(ctx context.Context, id uuid.UUID, strength string) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, filter ListFilter) ([]models.Delivery, error)
	ListDeliveryIDsByStatus(ctx context.Context, status enums.DeliveryStatus, after uuid.UUID, limit int) ([]uuid.UUID, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.DeliveryStatus, at time.Time) (bool, error)
	UpdateTotals(ctx context.Context, id uuid.UUID, expected, received decimal.Decimal) error

	ListItems(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryItem, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.DeliveryItem, error)
	FindItemLocked(ctx context.Context, itemID uuid.UUID) (*models.DeliveryItem, error)
	FindItemByCode(ctx context.Context, deliveryID uuid.UUID, scanType enums.ScanType, code string) (*models.DeliveryItem, error)
	IncrementReceived(ctx context.Context, itemID uuid.UUID, scanType enums.ScanType, qty int) error
	SetReceived(ctx context.Context, itemID uuid.UUID, counters ReceivedCounters) error
	UpdateDerived(ctx context.Context, seen models.DeliveryItem, state receiving.LineState, syncLegacy bool, at time.Time) (bool, error)
	UpdateCatalog(ctx context.Context, itemID uuid.UUID, update CatalogUpdate) error
	MarkPendingMissing(ctx context.Context, deliveryID uuid.UUID, at time.Time) ([]uuid.UUID, error)
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

func (r *repository) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repository) FindDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

// FindDeliveryLocked reads the delivery row under FOR SHARE or FOR UPDATE.
func (r *repository) FindDeliveryLocked(ctx context.Context, id uuid.UUID, strength string) (*models.Delivery, error) {
	var delivery models.Delivery
	q := dbpkg.Locked(r.db.WithContext(ctx), clause.Locking{Strength: strength})
	if err := q.Where("id = ?", id).First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) ListDeliveries(ctx context.Context, filter ListFilter) ([]models.Delivery, error) {
	q := r.db.WithContext(ctx).Model(&models.Delivery{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.SupplierID != nil {
		q = q.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.Delivery
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDeliveryIDsByStatus pages through deliveries in id order, starting
// after the given id. uuid.Nil starts from the beginning.
func (r *repository) ListDeliveryIDsByStatus(ctx context.Context, status enums.DeliveryStatus, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("status = ?", status)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	q = q.Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// TransitionStatus is a compare-and-set on status; false means another writer moved it first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.DeliveryStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case enums.DeliveryStatusCompleted:
		updates["completed_at"] = at
	case enums.DeliveryStatusCancelled:
		updates["cancelled_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateTotals(ctx context.Context, id uuid.UUID, expected, received decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"total_expected": expected,
			"total_received": received,
		}).Error
}

func (r *repository) ListItems(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryItem, error) {
	var items []models.DeliveryItem
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("sku ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.DeliveryItem, error) {
	var item models.DeliveryItem
	if err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemLocked reads the line FOR UPDATE so counter increments wait for
// the caller's transaction.
func (r *repository) FindItemLocked(ctx context.Context, itemID uuid.UUID) (*models.DeliveryItem, error) {
	var item models.DeliveryItem
	q := dbpkg.Locked(r.db.WithContext(ctx), clause.Locking{Strength: lockUpdate})
	if err := q.Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByCode matches case scans on outer_code and unit scans on barcode.
func (r *repository) FindItemByCode(ctx context.Context, deliveryID uuid.UUID, scanType enums.ScanType, code string) (*models.DeliveryItem, error) {
	column := "barcode"
	if scanType == enums.ScanTypeCase {
		column = "outer_code"
	}
	var item models.DeliveryItem
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Where(column+" = ?", code).
		Order("sku ASC").
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// IncrementReceived adds qty to the scan type's counter in a single UPDATE.
func (r *repository) IncrementReceived(ctx context.Context, itemID uuid.UUID, scanType enums.ScanType, qty int) error {
	column, err := receivedColumn(scanType)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
		Where("id = ?", itemID).
		UpdateColumn(column, gorm.Expr("COALESCE("+column+", 0) + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetReceived overwrites both counters and the legacy received column in one
// UPDATE, so the legacy fallback never outlives a correction.
func (r *repository) SetReceived(ctx context.Context, itemID uuid.UUID, counters ReceivedCounters) error {
	res := r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
		Where("id = ?", itemID).
		UpdateColumns(map[string]any{
			columnCaseReceived:  counters.Cases,
			columnUnitReceived:  counters.Units,
			"received_quantity": counters.Legacy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateDerived writes status (and the legacy received column) only while the
// counters still equal the ones the state was derived from.
func (r *repository) UpdateDerived(ctx context.Context, seen models.DeliveryItem, state receiving.LineState, syncLegacy bool, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     state.Status,
		"updated_at": at,
	}
	if syncLegacy {
		updates["received_quantity"] = state.LegacyReceived
	}
	res := r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
		Where("id = ?", seen.ID).
		Where("COALESCE(case_received_quantity, 0) = ?", derefInt(seen.CaseReceivedQuantity)).
		Where("COALESCE(unit_received_quantity, 0) = ?", derefInt(seen.UnitReceivedQuantity)).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateCatalog(ctx context.Context, itemID uuid.UUID, update CatalogUpdate) error {
	updates := map[string]any{}
	if update.ProductID != nil {
		updates["product_id"] = *update.ProductID
	}
	if update.IsNewProduct != nil {
		updates["is_new_product"] = *update.IsNewProduct
	}
	if update.BarcodeRetrievalFailed != nil {
		updates["barcode_retrieval_failed"] = *update.BarcodeRetrievalFailed
		updates["barcode_retrieval_error"] = update.BarcodeRetrievalError
	}
	if len(updates) > 0 {
		if err := r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
			Where("id = ?", itemID).
			UpdateColumns(updates).Error; err != nil {
			return err
		}
	}
	if update.SupplierCaseUnits != nil && *update.SupplierCaseUnits > 0 {
		// Only fill a missing supplier case size; never overwrite one.
		return r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
			Where("id = ? AND (supplier_case_units IS NULL OR supplier_case_units <= 0)", itemID).
			UpdateColumn("supplier_case_units", *update.SupplierCaseUnits).Error
	}
	return nil
}

// MarkPendingMissing applies the terminal missing label on completion and returns the affected lines.
func (r *repository) MarkPendingMissing(ctx context.Context, deliveryID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
		Where("delivery_id = ? AND status = ?", deliveryID, enums.DeliveryItemStatusPending).
		Order("sku ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).Model(&models.DeliveryItem{}).
		Where("id IN ?", ids).
		UpdateColumns(map[string]any{
			"status":     enums.DeliveryItemStatusMissing,
			"updated_at": at,
		}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func receivedColumn(scanType enums.ScanType) (string, error) {
	switch scanType {
	case enums.ScanTypeCase:
		return columnCaseReceived, nil
	case enums.ScanTypeUnit:
		return columnUnitReceived, nil
	default:
		return "", fmt.Errorf("no received counter for scan type %q", scanType)
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
