package scans

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
	"github.com/angelmondragon/goodsin-backend/pkg/pagination"
)

// Metadata keys written on every ledger row.
const (
	MetaScanType        = "type"
	MetaUnitsEquivalent = "units_equivalent"
	MetaDevice          = "device"
	MetaScannedAt       = "scanned_at"
)

// Service records and queries the scan ledger.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordInput) (*models.DeliveryScan, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Summarize(ctx context.Context, deliveryID uuid.UUID) (Summary, error)
}

// RecordInput is one physical scan. ItemID is nil when the barcode matched no line.
type RecordInput struct {
	DeliveryID      uuid.UUID
	ItemID          *uuid.UUID
	Barcode         string
	Quantity        int
	ScanType        enums.ScanType
	UnitsEquivalent int
	ScannedBy       string
	Device          string
	Extra           map[string]any
}

type ListParams struct {
	DeliveryID *uuid.UUID
	ItemID     *uuid.UUID
	Barcode    string
	Matched    *bool
	Since      *time.Time
	// Recent applies the configured recency window when Since is unset.
	Recent bool
	pagination.Params
}

type ListResult struct {
	Scans      []models.DeliveryScan
	NextCursor string
}

type service struct {
	repo         Repository
	now          func() time.Time
	recentWindow time.Duration
}

// NewService wires the ledger. now and recentWindow fall back to time.Now and 15 minutes.
func NewService(repo Repository, now func() time.Time, recentWindow time.Duration) (Service, error) {
	if repo == nil {
		return nil, errors.New("scan repository required")
	}
	if now == nil {
		now = time.Now
	}
	if recentWindow <= 0 {
		recentWindow = 15 * time.Minute
	}
	return &service{repo: repo, now: now, recentWindow: recentWindow}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx), now: s.now, recentWindow: s.recentWindow}
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.DeliveryScan, error) {
	if input.DeliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}
	barcode := strings.TrimSpace(input.Barcode)
	if barcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcode is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan quantity must be positive")
	}
	scannedBy := strings.TrimSpace(input.ScannedBy)
	if scannedBy == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scanned_by is required")
	}
	if input.ItemID != nil && *input.ItemID == uuid.Nil {
		input.ItemID = nil
	}
	scanType := input.ScanType
	if !scanType.IsValid() {
		scanType = enums.ScanTypeUnknown
	}

	scannedAt := s.now().UTC()
	meta := datatypes.JSONMap{}
	for k, v := range input.Extra {
		meta[k] = v
	}
	meta[MetaScanType] = string(scanType)
	meta[MetaUnitsEquivalent] = input.UnitsEquivalent
	meta[MetaScannedAt] = scannedAt.Format(time.RFC3339Nano)
	if device := strings.TrimSpace(input.Device); device != "" {
		meta[MetaDevice] = device
	}

	scan := &models.DeliveryScan{
		DeliveryID:     input.DeliveryID,
		DeliveryItemID: input.ItemID,
		Barcode:        barcode,
		Quantity:       input.Quantity,
		Matched:        input.ItemID != nil,
		ScannedBy:      scannedBy,
		Metadata:       meta,
		CreatedAt:      scannedAt,
	}
	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append scan")
	}
	return scan, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	beforeID, err := pagination.ParseSequenceCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	since := params.Since
	if since == nil && params.Recent {
		cutoff := s.now().UTC().Add(-s.recentWindow)
		since = &cutoff
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, Filter{
		DeliveryID: params.DeliveryID,
		ItemID:     params.ItemID,
		Barcode:    strings.TrimSpace(params.Barcode),
		Matched:    params.Matched,
		Since:      since,
		BeforeID:   beforeID,
		Limit:      pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list scans")
	}

	result := &ListResult{Scans: rows}
	if len(rows) > limit {
		result.Scans = rows[:limit]
		result.NextCursor = pagination.EncodeSequenceCursor(rows[limit-1].ID)
	}
	return result, nil
}

func (s *service) Summarize(ctx context.Context, deliveryID uuid.UUID) (Summary, error) {
	summary, err := s.repo.Summarize(ctx, deliveryID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize scans")
	}
	return summary, nil
}
