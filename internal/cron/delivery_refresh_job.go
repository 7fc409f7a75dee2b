package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
)

const deliveryRefreshBatch = 200

type receivingDeliveryLister interface {
	ListDeliveryIDsByStatus(ctx context.Context, status enums.DeliveryStatus, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type deliveryRefresher interface {
	RefreshDerived(ctx context.Context, deliveryID uuid.UUID) (int, error)
}

type DeliveryRefreshJobParams struct {
	Logger    *logger.Logger
	Lister    receivingDeliveryLister
	Refresher deliveryRefresher
	BatchSize int
}

// NewDeliveryRefreshJob re-derives line state and totals for deliveries still
// being received, repairing any post-commit recompute that was lost.
func NewDeliveryRefreshJob(params DeliveryRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lister == nil {
		return nil, fmt.Errorf("delivery lister required")
	}
	if params.Refresher == nil {
		return nil, fmt.Errorf("delivery refresher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = deliveryRefreshBatch
	}
	return &deliveryRefreshJob{
		logg:      params.Logger,
		lister:    params.Lister,
		refresher: params.Refresher,
		batch:     batch,
	}, nil
}

type deliveryRefreshJob struct {
	logg      *logger.Logger
	lister    receivingDeliveryLister
	refresher deliveryRefresher
	batch     int

	mu     sync.Mutex
	cursor uuid.UUID
}

func (j *deliveryRefreshJob) Name() string { return "delivery-state-refresh" }

// Run refreshes the next batch after the cursor. A short batch means the end
// was reached and the following tick starts over.
func (j *deliveryRefreshJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ids, err := j.lister.ListDeliveryIDsByStatus(ctx, enums.DeliveryStatusReceiving, j.cursor, j.batch)
	if err != nil {
		return fmt.Errorf("list receiving deliveries: %w", err)
	}
	if len(ids) < j.batch {
		j.cursor = uuid.Nil
	} else {
		j.cursor = ids[len(ids)-1]
	}

	var (
		errs    []error
		changed int
	)
	for _, id := range ids {
		n, err := j.refresher.RefreshDerived(ctx, id)
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh delivery %s: %w", id, err))
			continue
		}
		changed += n
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"deliveries":    len(ids),
		"wrapped":       j.cursor == uuid.Nil,
		"lines_changed": changed,
		"failures":      len(errs),
	})
	j.logg.Info(logCtx, "delivery state refresh complete")
	return multierr.Combine(errs...)
}
