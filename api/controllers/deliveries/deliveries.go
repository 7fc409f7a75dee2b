package deliveries

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/goodsin-backend/api/middleware"
	"github.com/angelmondragon/goodsin-backend/api/responses"
	"github.com/angelmondragon/goodsin-backend/api/validators"
	internaldeliveries "github.com/angelmondragon/goodsin-backend/internal/deliveries"
	"github.com/angelmondragon/goodsin-backend/internal/reports"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	"github.com/angelmondragon/goodsin-backend/pkg/pagination"
)

const defaultActor = "api"

// Create registers a confirmed supplier order as a draft delivery.
func Create(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		var input internaldeliveries.CreateDeliveryInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// List pages deliveries newest first, optionally filtered by status and supplier.
func List(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := validators.ParseQueryUUID(r, "supplier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internaldeliveries.ListParams{
			SupplierID: supplierID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseDeliveryStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, result.Deliveries, result.NextCursor)
	}
}

func Detail(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Progress(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Progress(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Item(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseURLUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Item(r.Context(), deliveryID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type lifecycleRequest struct {
	Actor string `json:"actor" validate:"omitempty,max=128"`
}

// Complete closes receiving; lines never received are reported as missing.
func Complete(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(logg, func(r *http.Request, actor string) (*internaldeliveries.DeliveryView, error) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			return nil, err
		}
		return svc.Complete(r.Context(), deliveryID, actor)
	})
}

func Cancel(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycle(logg, func(r *http.Request, actor string) (*internaldeliveries.DeliveryView, error) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), deliveryID, actor)
	})
}

func lifecycle(logg *logger.Logger, run func(*http.Request, string) (*internaldeliveries.DeliveryView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body lifecycleRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		actor := firstNonEmpty(body.Actor, middleware.ScannerIDFromContext(r.Context()), defaultActor)

		view, err := run(r, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Discrepancies returns the flagged lines as JSON, or as an xlsx workbook when
// format=xlsx is requested.
func Discrepancies(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Discrepancies(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !wantsWorkbook(r) {
			responses.WriteSuccess(w, report)
			return
		}

		workbook, err := reports.BuildDiscrepancyWorkbook(*report)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build discrepancy workbook"))
			return
		}
		defer workbook.Close()

		w.Header().Set("Content-Type", reports.ContentTypeXLSX)
		w.Header().Set("Content-Disposition", `attachment; filename="`+reports.DiscrepancyFilename(*report)+`"`)
		if _, err := workbook.WriteTo(w); err != nil && logg != nil {
			logg.Error(r.Context(), "write discrepancy workbook", err)
		}
	}
}

func wantsWorkbook(r *http.Request) bool {
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "xlsx") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), reports.ContentTypeXLSX)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
