package deliveries

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/internal/catalog"
	"github.com/angelmondragon/goodsin-backend/internal/scans"
	dbpkg "github.com/angelmondragon/goodsin-backend/pkg/db"
	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	"github.com/angelmondragon/goodsin-backend/pkg/metrics"
	"github.com/angelmondragon/goodsin-backend/pkg/outbox"
	"github.com/angelmondragon/goodsin-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/goodsin-backend/pkg/pagination"
	"github.com/angelmondragon/goodsin-backend/pkg/receiving"
)

const (
	lockShare  = "SHARE"
	lockUpdate = "UPDATE"

	uniqueDeliveryNumber = "ux_deliveries_number"
	maxRetrievalErrorLen = 512
)

// Service is the delivery reconciliation engine.
type Service interface {
	Create(ctx context.Context, input CreateDeliveryInput) (*DeliveryView, error)

	AddCaseScan(ctx context.Context, itemID uuid.UUID, cases int, scannedBy string) (*ScanResult, error)
	AddUnitScan(ctx context.Context, itemID uuid.UUID, units int, scannedBy string) (*ScanResult, error)
	ScanBarcode(ctx context.Context, input ScanInput) (*ScanResult, error)
	AdjustReceived(ctx context.Context, input AdjustInput) (*ItemView, error)

	Complete(ctx context.Context, deliveryID uuid.UUID, actor string) (*DeliveryView, error)
	Cancel(ctx context.Context, deliveryID uuid.UUID, actor string) (*DeliveryView, error)

	Get(ctx context.Context, deliveryID uuid.UUID) (*DeliveryView, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Progress(ctx context.Context, deliveryID uuid.UUID) (*ProgressView, error)
	Item(ctx context.Context, deliveryID, itemID uuid.UUID) (*ItemView, error)
	Discrepancies(ctx context.Context, deliveryID uuid.UUID) (*DiscrepancyReport, error)

	Status(ctx context.Context, itemID uuid.UUID) (enums.DeliveryItemStatus, error)
	TotalReceivedUnits(ctx context.Context, itemID uuid.UUID) (int, error)
	TotalOrderedUnits(ctx context.Context, itemID uuid.UUID) (int, error)
	CompletionPercentage(ctx context.Context, deliveryID uuid.UUID) (float64, error)

	RefreshDerived(ctx context.Context, deliveryID uuid.UUID) (int, error)
}

type ServiceParams struct {
	Tx       dbpkg.TxRunner
	Repo     Repository
	Scans    scans.Service
	Outbox   outbox.Emitter
	Resolver catalog.Resolver
	Metrics  *metrics.ReceivingMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       dbpkg.TxRunner
	repo     Repository
	scans    scans.Service
	outbox   outbox.Emitter
	resolver catalog.Resolver
	metrics  *metrics.ReceivingMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the engine. Resolver and Metrics are optional.
func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if p.Repo == nil {
		return nil, errors.New("delivery repository required")
	}
	if p.Scans == nil {
		return nil, errors.New("scan ledger required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		tx:       p.Tx,
		repo:     p.Repo,
		scans:    p.Scans,
		outbox:   p.Outbox,
		resolver: p.Resolver,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateDeliveryInput) (*DeliveryView, error) {
	number := strings.TrimSpace(input.DeliveryNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_number is required")
	}
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier_id is required")
	}
	if input.DeliveryDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_date is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	delivery := &models.Delivery{
		DeliveryNumber: number,
		SupplierID:     input.SupplierID,
		DeliveryDate:   input.DeliveryDate.UTC(),
		Status:         enums.DeliveryStatusDraft,
		TotalReceived:  decimal.Zero,
		Notes:          input.Notes,
	}
	if len(input.ImportData) > 0 {
		delivery.ImportData = datatypes.JSON(input.ImportData)
	}

	seen := make(map[string]struct{}, len(input.Items))
	expected := decimal.Zero
	for i, in := range input.Items {
		item, err := buildItem(in)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item").
				WithDetails(map[string]any{"index": i, "sku": in.SKU})
		}
		if _, dup := seen[item.SKU]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate sku in delivery").
				WithDetails(map[string]any{"index": i, "sku": item.SKU})
		}
		seen[item.SKU] = struct{}{}
		expected = expected.Add(receiving.LineCost(receiving.TotalOrderedUnits(item.Line()), item.UnitCost))
		delivery.Items = append(delivery.Items, item)
	}
	delivery.TotalExpected = expected

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateDelivery(ctx, delivery); err != nil {
			if dbpkg.IsUniqueViolation(err, uniqueDeliveryNumber) || dbpkg.IsUniqueViolation(err, "deliveries.delivery_number") {
				return pkgerrors.New(pkgerrors.CodeConflict, "delivery number already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryCreated,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Data: payloads.DeliveryCreatedEvent{
				DeliveryID:     delivery.ID,
				DeliveryNumber: delivery.DeliveryNumber,
				SupplierID:     delivery.SupplierID,
				ItemCount:      len(delivery.Items),
				TotalExpected:  delivery.TotalExpected.StringFixed(4),
			},
		})
	})
	if err != nil {
		return nil, asTyped(err, "create delivery")
	}

	s.logg.Info(s.logg.WithDeliveryID(ctx, delivery.ID.String()), "delivery created")
	return s.Get(ctx, delivery.ID)
}

func buildItem(in CreateItemInput) (models.DeliveryItem, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return models.DeliveryItem{}, errors.New("sku is required")
	}
	if !in.QuantityType.IsValid() {
		return models.DeliveryItem{}, errors.New("quantity_type must be unit, case or mixed")
	}
	if in.OrderedQuantity == nil && in.CaseOrderedQuantity == nil && in.UnitOrderedQuantity == nil {
		return models.DeliveryItem{}, errors.New("an ordered quantity is required")
	}
	for _, v := range []*int{in.OrderedQuantity, in.CaseOrderedQuantity, in.UnitOrderedQuantity, in.UnitsPerCase, in.SupplierCaseUnits} {
		if v != nil && *v < 0 {
			return models.DeliveryItem{}, errors.New("quantities must not be negative")
		}
	}
	if in.UnitCost.IsNegative() || in.SalePrice.IsNegative() || in.TaxRate.IsNegative() {
		return models.DeliveryItem{}, errors.New("prices and tax rate must not be negative")
	}

	item := models.DeliveryItem{
		SKU:                 sku,
		ProductID:           in.ProductID,
		Description:         strings.TrimSpace(in.Description),
		QuantityType:        in.QuantityType,
		OrderedQuantity:     in.OrderedQuantity,
		CaseOrderedQuantity: in.CaseOrderedQuantity,
		UnitsPerCase:        in.UnitsPerCase,
		SupplierCaseUnits:   in.SupplierCaseUnits,
		UnitOrderedQuantity: in.UnitOrderedQuantity,
		Barcode:             trimmedOrNil(in.Barcode),
		OuterCode:           trimmedOrNil(in.OuterCode),
		UnitCost:            in.UnitCost,
		SalePrice:           in.SalePrice,
		TaxRate:             in.TaxRate,
	}
	if in.NormalizedTaxRate != nil {
		item.NormalizedTaxRate = decimal.NullDecimal{Decimal: *in.NormalizedTaxRate, Valid: true}
	}
	item.Status = receiving.LineStatus(item.Line())
	return item, nil
}

func (s *service) AddCaseScan(ctx context.Context, itemID uuid.UUID, cases int, scannedBy string) (*ScanResult, error) {
	return s.scanItem(ctx, scanRequest{itemID: itemID, scanType: enums.ScanTypeCase, qty: cases, scannedBy: scannedBy})
}

func (s *service) AddUnitScan(ctx context.Context, itemID uuid.UUID, units int, scannedBy string) (*ScanResult, error) {
	return s.scanItem(ctx, scanRequest{itemID: itemID, scanType: enums.ScanTypeUnit, qty: units, scannedBy: scannedBy})
}

type scanRequest struct {
	deliveryID *uuid.UUID
	itemID     uuid.UUID
	scanType   enums.ScanType
	qty        int
	barcode    string
	scannedBy  string
	device     string
}

// scanItem appends the ledger row and moves the counter in one transaction,
// then re-derives the line and delivery from a fresh read.
func (s *service) scanItem(ctx context.Context, req scanRequest) (*ScanResult, error) {
	if req.itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if req.qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan quantity must be positive")
	}
	if strings.TrimSpace(req.scannedBy) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scanned_by is required")
	}

	var (
		result     ScanResult
		applied    models.DeliveryItem
		deliveryID uuid.UUID
		moved      bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindItem(ctx, req.itemID)
		if err != nil {
			return notFound(err, "delivery item not found")
		}
		if req.deliveryID != nil && item.DeliveryID != *req.deliveryID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item does not belong to delivery")
		}
		deliveryID = item.DeliveryID

		delivery, err := s.lockForScan(ctx, repo, item.DeliveryID)
		if err != nil {
			return err
		}
		next, err := receiving.NextDeliveryStatus(delivery.Status, receiving.EventScan)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "delivery does not accept scans")
		}

		if err := repo.IncrementReceived(ctx, item.ID, req.scanType, req.qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment received")
		}

		units := req.qty
		if req.scanType == enums.ScanTypeCase {
			units = receiving.CasesToUnits(item.Line(), req.qty)
		}
		barcode := req.barcode
		if barcode == "" {
			barcode = defaultScanCode(*item, req.scanType)
		}
		itemID := item.ID
		scan, err := s.scans.WithTx(tx).Record(ctx, scans.RecordInput{
			DeliveryID:      item.DeliveryID,
			ItemID:          &itemID,
			Barcode:         barcode,
			Quantity:        req.qty,
			ScanType:        req.scanType,
			UnitsEquivalent: units,
			ScannedBy:       req.scannedBy,
			Device:          req.device,
		})
		if err != nil {
			return err
		}

		if next != delivery.Status {
			ok, err := repo.TransitionStatus(ctx, delivery.ID, delivery.Status, next, s.now().UTC())
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start receiving")
			}
			if ok {
				moved = true
				if err := s.emitStatusChanged(ctx, tx, delivery, next, nil, req.scannedBy); err != nil {
					return err
				}
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryScanRecorded,
			AggregateType: enums.AggregateDeliveryItem,
			AggregateID:   item.ID,
			Actor:         &outbox.ActorRef{ScannedBy: req.scannedBy, Device: req.device},
			OccurredAt:    scan.CreatedAt,
			Data: payloads.DeliveryScanRecordedEvent{
				DeliveryID:      item.DeliveryID,
				DeliveryItemID:  item.ID,
				ScanID:          scan.ID,
				SKU:             item.SKU,
				Barcode:         scan.Barcode,
				ScanType:        req.scanType,
				Quantity:        req.qty,
				UnitsEquivalent: units,
				ScannedBy:       scan.ScannedBy,
			},
		}); err != nil {
			return err
		}

		applied = withIncrement(*item, req.scanType, req.qty)
		result = ScanResult{
			Scan:           scans.NewView(*scan),
			Matched:        true,
			ScanType:       req.scanType,
			UnitsApplied:   units,
			KnownToCatalog: true,
			DeliveryStatus: next,
		}
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "record scan")
	}

	if s.metrics != nil {
		s.metrics.ObserveScan(string(req.scanType), true, result.UnitsApplied)
		if moved {
			s.metrics.ObserveTransition(string(enums.DeliveryStatusReceiving))
		}
	}

	item := s.settleItem(ctx, req.itemID, applied)
	s.refreshTotals(ctx, deliveryID)

	view := newItemView(item, result.DeliveryStatus)
	result.Item = &view
	return &result, nil
}

// lockForScan holds the delivery FOR SHARE so complete and cancel wait for
// in-flight scans. A draft delivery is taken FOR UPDATE since the scan will
// move it to receiving.
func (s *service) lockForScan(ctx context.Context, repo Repository, deliveryID uuid.UUID) (*models.Delivery, error) {
	current, err := repo.FindDelivery(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}
	strength := lockShare
	if current.Status == enums.DeliveryStatusDraft {
		strength = lockUpdate
	}
	delivery, err := repo.FindDeliveryLocked(ctx, deliveryID, strength)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}
	return delivery, nil
}

func (s *service) ScanBarcode(ctx context.Context, input ScanInput) (*ScanResult, error) {
	code := strings.TrimSpace(input.Barcode)
	if input.DeliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcode is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan quantity must be positive")
	}
	if strings.TrimSpace(input.ScannedBy) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scanned_by is required")
	}

	ctx = s.logg.WithDeliveryID(ctx, input.DeliveryID.String())
	delivery, err := s.repo.FindDelivery(ctx, input.DeliveryID)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}
	if _, err := receiving.NextDeliveryStatus(delivery.Status, receiving.EventScan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "delivery does not accept scans")
	}

	for _, scanType := range []enums.ScanType{enums.ScanTypeCase, enums.ScanTypeUnit} {
		item, err := s.repo.FindItemByCode(ctx, input.DeliveryID, scanType, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "match barcode")
		}
		s.enrichFromCatalog(ctx, *item, scanType, code)
		return s.scanItem(ctx, scanRequest{
			deliveryID: &input.DeliveryID,
			itemID:     item.ID,
			scanType:   scanType,
			qty:        input.Quantity,
			barcode:    code,
			scannedBy:  input.ScannedBy,
			device:     input.Device,
		})
	}
	return s.recordUnmatched(ctx, delivery, code, input)
}

// enrichFromCatalog records what the catalog knows about a matched line.
// Failures are stored on the line and never block the scan.
func (s *service) enrichFromCatalog(ctx context.Context, item models.DeliveryItem, scanType enums.ScanType, code string) {
	if s.resolver == nil {
		return
	}
	needsCaseSize := scanType == enums.ScanTypeCase && (item.SupplierCaseUnits == nil || *item.SupplierCaseUnits <= 0)
	if item.ProductID != nil && !needsCaseSize && !item.BarcodeRetrievalFailed {
		return
	}

	update := CatalogUpdate{}
	res, err := s.resolver.ResolveBarcode(ctx, code)
	if err != nil {
		failed := true
		msg := truncate(err.Error(), maxRetrievalErrorLen)
		update.BarcodeRetrievalFailed = &failed
		update.BarcodeRetrievalError = &msg
		s.logg.Warn(s.logg.WithField(ctx, "barcode", code), "catalog lookup failed")
	} else {
		failed := false
		update.BarcodeRetrievalFailed = &failed
		isNew := !res.IsKnown
		update.IsNewProduct = &isNew
		if res.IsKnown {
			if item.ProductID == nil {
				update.ProductID = res.ProductID
			}
			if res.IsOuter && needsCaseSize {
				update.SupplierCaseUnits = res.CaseUnits
			}
		}
	}
	if err := s.repo.UpdateCatalog(ctx, item.ID, update); err != nil {
		s.logg.Error(ctx, "store catalog resolution", err)
	}
}

func (s *service) recordUnmatched(ctx context.Context, delivery *models.Delivery, code string, input ScanInput) (*ScanResult, error) {
	known := false
	extra := map[string]any{}
	if s.resolver != nil {
		res, err := s.resolver.ResolveBarcode(ctx, code)
		if err != nil {
			extra["catalog_error"] = truncate(err.Error(), maxRetrievalErrorLen)
		} else {
			known = res.IsKnown
			if res.ProductID != nil {
				extra["product_id"] = res.ProductID.String()
			}
		}
	}
	extra["known_to_catalog"] = known

	var result ScanResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindDeliveryLocked(ctx, delivery.ID, lockShare)
		if err != nil {
			return notFound(err, "delivery not found")
		}
		if _, err := receiving.NextDeliveryStatus(locked.Status, receiving.EventScan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "delivery does not accept scans")
		}
		scan, err := s.scans.WithTx(tx).Record(ctx, scans.RecordInput{
			DeliveryID: delivery.ID,
			Barcode:    code,
			Quantity:   input.Quantity,
			ScanType:   enums.ScanTypeUnknown,
			ScannedBy:  input.ScannedBy,
			Device:     input.Device,
			Extra:      extra,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryBarcodeUnknown,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Actor:         &outbox.ActorRef{ScannedBy: input.ScannedBy, Device: input.Device},
			OccurredAt:    scan.CreatedAt,
			Data: payloads.DeliveryBarcodeUnmatchedEvent{
				DeliveryID:     delivery.ID,
				ScanID:         scan.ID,
				Barcode:        code,
				Quantity:       input.Quantity,
				ScannedBy:      scan.ScannedBy,
				KnownToCatalog: known,
			},
		}); err != nil {
			return err
		}
		result = ScanResult{
			Scan:           scans.NewView(*scan),
			ScanType:       enums.ScanTypeUnknown,
			KnownToCatalog: known,
			DeliveryStatus: locked.Status,
		}
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "record unmatched scan")
	}
	if s.metrics != nil {
		s.metrics.ObserveScan(string(enums.ScanTypeUnknown), false, 0)
	}
	s.logg.Info(s.logg.WithField(ctx, "barcode", code), "unmatched barcode scanned")
	return &result, nil
}

func (s *service) AdjustReceived(ctx context.Context, input AdjustInput) (*ItemView, error) {
	if input.ItemID == uuid.Nil || input.DeliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id and item id are required")
	}
	if input.CaseReceived == nil && input.UnitReceived == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "case_received or unit_received is required")
	}
	if (input.CaseReceived != nil && *input.CaseReceived < 0) || (input.UnitReceived != nil && *input.UnitReceived < 0) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "received quantities must not be negative")
	}
	if strings.TrimSpace(input.AdjustedBy) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjusted_by is required")
	}

	var (
		status   enums.DeliveryStatus
		adjusted models.DeliveryItem
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindItem(ctx, input.ItemID)
		if err != nil {
			return notFound(err, "delivery item not found")
		}
		if current.DeliveryID != input.DeliveryID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item does not belong to delivery")
		}
		delivery, err := repo.FindDeliveryLocked(ctx, current.DeliveryID, lockShare)
		if err != nil {
			return notFound(err, "delivery not found")
		}
		if delivery.Status != enums.DeliveryStatusReceiving {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "received quantities can only be adjusted while receiving")
		}
		status = delivery.Status

		// delivery before line, the same order scans take their locks in
		item, err := repo.FindItemLocked(ctx, input.ItemID)
		if err != nil {
			return notFound(err, "delivery item not found")
		}
		adjusted = overrideCounters(*item, input.CaseReceived, input.UnitReceived)
		if err := repo.SetReceived(ctx, item.ID, ReceivedCounters{
			Cases:  *adjusted.CaseReceivedQuantity,
			Units:  *adjusted.UnitReceivedQuantity,
			Legacy: *adjusted.ReceivedQuantity,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set received")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryItemAdjusted,
			AggregateType: enums.AggregateDeliveryItem,
			AggregateID:   item.ID,
			Actor:         &outbox.ActorRef{ScannedBy: input.AdjustedBy},
			Data: payloads.DeliveryItemAdjustedEvent{
				DeliveryID:           item.DeliveryID,
				DeliveryItemID:       item.ID,
				PreviousCaseReceived: item.CaseReceivedQuantity,
				PreviousUnitReceived: item.UnitReceivedQuantity,
				CaseReceived:         adjusted.CaseReceivedQuantity,
				UnitReceived:         adjusted.UnitReceivedQuantity,
				Status:               adjusted.Status,
				Reason:               strings.TrimSpace(input.Reason),
				AdjustedBy:           input.AdjustedBy,
			},
		})
	})
	if err != nil {
		return nil, asTyped(err, "adjust received")
	}

	item := s.settleItem(ctx, input.ItemID, adjusted)
	s.refreshTotals(ctx, input.DeliveryID)
	view := newItemView(item, status)
	return &view, nil
}

// overrideCounters applies a manual correction to both counters. A line that
// only ever carried the legacy received column is seeded from it first, and
// the legacy column is rebuilt from the corrected counters.
func overrideCounters(item models.DeliveryItem, cases, units *int) models.DeliveryItem {
	if !hasScanCounters(item) && item.ReceivedQuantity != nil {
		if item.QuantityType == enums.QuantityTypeCase {
			item.CaseReceivedQuantity = receiving.IntPtr(*item.ReceivedQuantity)
		} else {
			item.UnitReceivedQuantity = receiving.IntPtr(*item.ReceivedQuantity)
		}
	}
	item.CaseReceivedQuantity = receiving.IntPtr(derefInt(item.CaseReceivedQuantity))
	item.UnitReceivedQuantity = receiving.IntPtr(derefInt(item.UnitReceivedQuantity))
	if cases != nil {
		item.CaseReceivedQuantity = receiving.IntPtr(*cases)
	}
	if units != nil {
		item.UnitReceivedQuantity = receiving.IntPtr(*units)
	}
	item.ReceivedQuantity = nil
	state := receiving.Derive(item.Line())
	item.ReceivedQuantity = receiving.IntPtr(state.LegacyReceived)
	item.Status = state.Status
	return item
}

func (s *service) Complete(ctx context.Context, deliveryID uuid.UUID, actor string) (*DeliveryView, error) {
	return s.finish(ctx, deliveryID, receiving.EventComplete, actor)
}

func (s *service) Cancel(ctx context.Context, deliveryID uuid.UUID, actor string) (*DeliveryView, error) {
	return s.finish(ctx, deliveryID, receiving.EventCancel, actor)
}

// finish applies a terminal transition. Completion first settles every line
// from its counters, then stamps missing on lines that were never received.
func (s *service) finish(ctx context.Context, deliveryID uuid.UUID, event receiving.DeliveryEvent, actor string) (*DeliveryView, error) {
	if deliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}
	ctx = s.logg.WithDeliveryID(ctx, deliveryID.String())

	var next enums.DeliveryStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		delivery, err := repo.FindDeliveryLocked(ctx, deliveryID, lockUpdate)
		if err != nil {
			return notFound(err, "delivery not found")
		}
		next, err = receiving.NextDeliveryStatus(delivery.Status, event)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "delivery transition rejected")
		}

		var missing []uuid.UUID
		if next == enums.DeliveryStatusCompleted {
			now := s.now().UTC()
			items, err := repo.ListItems(ctx, deliveryID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
			}
			for _, item := range items {
				state := receiving.Derive(item.Line())
				if state.Status == item.Status {
					continue
				}
				if _, err := repo.UpdateDerived(ctx, item, state, hasScanCounters(item), now); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle line")
				}
			}
			missing, err = repo.MarkPendingMissing(ctx, deliveryID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark missing lines")
			}
		}

		ok, err := repo.TransitionStatus(ctx, deliveryID, delivery.Status, next, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery status changed concurrently")
		}
		return s.emitStatusChanged(ctx, tx, delivery, next, missing, actor)
	})
	if err != nil {
		return nil, asTyped(err, "finish delivery")
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(next))
	}
	s.refreshTotals(ctx, deliveryID)
	s.logg.Info(s.logg.WithField(ctx, "status", string(next)), "delivery closed")
	return s.Get(ctx, deliveryID)
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, delivery *models.Delivery, to enums.DeliveryStatus, missing []uuid.UUID, actor string) error {
	items, err := s.repo.WithTx(tx).ListItems(ctx, delivery.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	var ref *outbox.ActorRef
	if actor = strings.TrimSpace(actor); actor != "" {
		ref = &outbox.ActorRef{ScannedBy: actor}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDeliveryStatusChanged,
		AggregateType: enums.AggregateDelivery,
		AggregateID:   delivery.ID,
		Actor:         ref,
		Data: payloads.DeliveryStatusChangedEvent{
			DeliveryID:           delivery.ID,
			DeliveryNumber:       delivery.DeliveryNumber,
			From:                 delivery.Status,
			To:                   to,
			CompletionPercentage: receiving.CompletionPercentage(itemStatuses(items)),
			MissingItemIDs:       missing,
		},
	})
}

// rederiveItem recomputes status and the legacy column from a fresh read.
// A failed guard means a newer increment landed and its own recompute wins.
func (s *service) rederiveItem(ctx context.Context, itemID uuid.UUID) (*models.DeliveryItem, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, notFound(err, "delivery item not found")
	}
	if _, err := s.applyDerived(ctx, *item); err != nil {
		return nil, err
	}
	fresh, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, notFound(err, "delivery item not found")
	}
	return fresh, nil
}

// settleItem re-derives a line whose counters already committed. The write is
// not retried here: a failure is logged, the view is built from the counters
// alone and the refresh job repairs the stored status.
func (s *service) settleItem(ctx context.Context, itemID uuid.UUID, fallback models.DeliveryItem) models.DeliveryItem {
	item, err := s.rederiveItem(ctx, itemID)
	if err == nil {
		return *item
	}
	s.logg.Error(s.logg.WithField(ctx, "item_id", itemID.String()), "re-derive line after commit", err)
	current, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return fallback
	}
	if current.Status != enums.DeliveryItemStatusMissing {
		current.Status = receiving.LineStatus(current.Line())
	}
	return *current
}

// withIncrement is the in-memory image of a committed counter increment.
func withIncrement(item models.DeliveryItem, scanType enums.ScanType, qty int) models.DeliveryItem {
	switch scanType {
	case enums.ScanTypeCase:
		item.CaseReceivedQuantity = receiving.IntPtr(derefInt(item.CaseReceivedQuantity) + qty)
	case enums.ScanTypeUnit:
		item.UnitReceivedQuantity = receiving.IntPtr(derefInt(item.UnitReceivedQuantity) + qty)
	}
	state := receiving.Derive(item.Line())
	item.ReceivedQuantity = receiving.IntPtr(state.LegacyReceived)
	item.Status = state.Status
	return item
}

func (s *service) applyDerived(ctx context.Context, item models.DeliveryItem) (bool, error) {
	state := receiving.Derive(item.Line())
	syncLegacy := hasScanCounters(item)
	if item.Status == enums.DeliveryItemStatusMissing && state.Status == enums.DeliveryItemStatusPending {
		return false, nil
	}
	if state.Status == item.Status && (!syncLegacy || intEquals(item.ReceivedQuantity, state.LegacyReceived)) {
		return false, nil
	}
	updated, err := s.repo.UpdateDerived(ctx, item, state, syncLegacy, s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update line state")
	}
	return updated, nil
}

// refreshTotals tolerates staleness: a failure is logged and the next scan or
// the refresh job repairs it.
func (s *service) refreshTotals(ctx context.Context, deliveryID uuid.UUID) {
	if err := s.recomputeTotals(ctx, deliveryID); err != nil {
		s.logg.Error(s.logg.WithDeliveryID(ctx, deliveryID.String()), "refresh delivery totals", err)
	}
}

func (s *service) recomputeTotals(ctx context.Context, deliveryID uuid.UUID) error {
	items, err := s.repo.ListItems(ctx, deliveryID)
	if err != nil {
		return err
	}
	expected, received := decimal.Zero, decimal.Zero
	for _, item := range items {
		line := item.Line()
		expected = expected.Add(receiving.LineCost(receiving.TotalOrderedUnits(line), item.UnitCost))
		received = received.Add(receiving.LineCost(receiving.TotalReceivedUnits(line), item.UnitCost))
	}
	return s.repo.UpdateTotals(ctx, deliveryID, expected, received)
}

// RefreshDerived re-derives every line of a delivery and its totals. It
// returns how many lines changed.
func (s *service) RefreshDerived(ctx context.Context, deliveryID uuid.UUID) (int, error) {
	delivery, err := s.repo.FindDelivery(ctx, deliveryID)
	if err != nil {
		return 0, notFound(err, "delivery not found")
	}
	if delivery.Status.IsTerminal() {
		return 0, nil
	}
	items, err := s.repo.ListItems(ctx, deliveryID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	changed := 0
	for _, item := range items {
		ok, err := s.applyDerived(ctx, item)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	if err := s.recomputeTotals(ctx, deliveryID); err != nil {
		return changed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute totals")
	}
	return changed, nil
}

func (s *service) Get(ctx context.Context, deliveryID uuid.UUID) (*DeliveryView, error) {
	delivery, items, err := s.load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	view := newDeliveryView(*delivery, items, true)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListDeliveries(ctx, ListFilter{
		Status:     params.Status,
		SupplierID: params.SupplierID,
		Cursor:     cursor,
		Limit:      pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliveries")
	}

	result := &ListResult{Deliveries: make([]DeliveryView, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for _, row := range rows {
		result.Deliveries = append(result.Deliveries, newDeliveryView(row, nil, false))
	}
	return result, nil
}

func (s *service) Progress(ctx context.Context, deliveryID uuid.UUID) (*ProgressView, error) {
	delivery, items, err := s.load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	summary, err := s.scans.Summarize(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	statuses := make([]enums.DeliveryItemStatus, 0, len(items))
	view := &ProgressView{
		DeliveryID:         delivery.ID,
		Status:             delivery.Status,
		ItemCount:          len(items),
		ScanCount:          summary.Total,
		UnmatchedScanCount: summary.Unmatched,
		LastScanAt:         summary.LastScan,
	}
	for _, item := range items {
		line := item.Line()
		view.OrderedUnits += receiving.TotalOrderedUnits(line)
		view.ReceivedUnits += receiving.TotalReceivedUnits(line)
		statuses = append(statuses, receiving.DisplayStatus(item.Status, delivery.Status))
	}
	view.CompletionPercentage = receiving.CompletionPercentage(statuses)
	view.StatusCounts = receiving.StatusCounts(statuses)
	return view, nil
}

func (s *service) Item(ctx context.Context, deliveryID, itemID uuid.UUID) (*ItemView, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, notFound(err, "delivery item not found")
	}
	if item.DeliveryID != deliveryID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item does not belong to delivery")
	}
	delivery, err := s.repo.FindDelivery(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}
	view := newItemView(*item, delivery.Status)
	return &view, nil
}

func (s *service) Discrepancies(ctx context.Context, deliveryID uuid.UUID) (*DiscrepancyReport, error) {
	delivery, items, err := s.load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	report := &DiscrepancyReport{
		Delivery: newDeliveryView(*delivery, items, false),
		Lines:    []ItemView{},
	}
	pct := receiving.CompletionPercentage(itemStatuses(items))
	report.Delivery.CompletionPercentage = &pct
	for _, item := range items {
		view := newItemView(item, delivery.Status)
		if view.Status.IsDiscrepancy() || view.PotentialDepositScheme || view.IsNewProduct {
			report.Lines = append(report.Lines, view)
		}
	}
	return report, nil
}

func (s *service) Status(ctx context.Context, itemID uuid.UUID) (enums.DeliveryItemStatus, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return "", notFound(err, "delivery item not found")
	}
	delivery, err := s.repo.FindDelivery(ctx, item.DeliveryID)
	if err != nil {
		return "", notFound(err, "delivery not found")
	}
	return receiving.DisplayStatus(receiving.LineStatus(item.Line()), delivery.Status), nil
}

func (s *service) TotalReceivedUnits(ctx context.Context, itemID uuid.UUID) (int, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return 0, notFound(err, "delivery item not found")
	}
	return receiving.TotalReceivedUnits(item.Line()), nil
}

func (s *service) TotalOrderedUnits(ctx context.Context, itemID uuid.UUID) (int, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return 0, notFound(err, "delivery item not found")
	}
	return receiving.TotalOrderedUnits(item.Line()), nil
}

func (s *service) CompletionPercentage(ctx context.Context, deliveryID uuid.UUID) (float64, error) {
	_, items, err := s.load(ctx, deliveryID)
	if err != nil {
		return 0, err
	}
	statuses := make([]enums.DeliveryItemStatus, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, receiving.LineStatus(item.Line()))
	}
	return receiving.CompletionPercentage(statuses), nil
}

func (s *service) load(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, []models.DeliveryItem, error) {
	delivery, err := s.repo.FindDelivery(ctx, deliveryID)
	if err != nil {
		return nil, nil, notFound(err, "delivery not found")
	}
	items, err := s.repo.ListItems(ctx, deliveryID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	return delivery, items, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func asTyped(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}

func hasScanCounters(item models.DeliveryItem) bool {
	return item.CaseReceivedQuantity != nil || item.UnitReceivedQuantity != nil
}

func defaultScanCode(item models.DeliveryItem, scanType enums.ScanType) string {
	if scanType == enums.ScanTypeCase && item.OuterCode != nil && *item.OuterCode != "" {
		return *item.OuterCode
	}
	if scanType == enums.ScanTypeUnit && item.Barcode != nil && *item.Barcode != "" {
		return *item.Barcode
	}
	return item.SKU
}

func intEquals(v *int, want int) bool {
	return v != nil && *v == want
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
