package deliveries

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/goodsin-backend/api/middleware"
	"github.com/angelmondragon/goodsin-backend/api/responses"
	"github.com/angelmondragon/goodsin-backend/api/validators"
	internaldeliveries "github.com/angelmondragon/goodsin-backend/internal/deliveries"
	"github.com/angelmondragon/goodsin-backend/internal/scans"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	"github.com/angelmondragon/goodsin-backend/pkg/pagination"
)

const maxBarcodeLength = 128

type barcodeScanRequest struct {
	Barcode   string `json:"barcode" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"min=1"`
	ScannedBy string `json:"scanned_by" validate:"omitempty,max=128"`
	Device    string `json:"device" validate:"omitempty,max=128"`
}

type itemScanRequest struct {
	Quantity  int    `json:"quantity" validate:"min=1"`
	ScannedBy string `json:"scanned_by" validate:"omitempty,max=128"`
}

type adjustRequest struct {
	CaseReceivedQuantity *int   `json:"case_received_quantity" validate:"omitempty,gte=0"`
	UnitReceivedQuantity *int   `json:"unit_received_quantity" validate:"omitempty,gte=0"`
	Reason               string `json:"reason" validate:"required,max=512"`
	AdjustedBy           string `json:"adjusted_by" validate:"omitempty,max=128"`
}

// Scan matches a raw barcode against the delivery's lines and records it.
// Unknown barcodes are recorded as unmatched and still return 201.
func Scan(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body barcodeScanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ScanBarcode(logg.WithDeliveryID(r.Context(), deliveryID.String()), internaldeliveries.ScanInput{
			DeliveryID: deliveryID,
			Barcode:    validators.SanitizeString(body.Barcode, maxBarcodeLength),
			Quantity:   body.Quantity,
			ScannedBy:  firstNonEmpty(body.ScannedBy, middleware.ScannerIDFromContext(r.Context())),
			Device:     body.Device,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CaseScan adds whole cases to one line.
func CaseScan(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return itemScan(svc, logg, enums.ScanTypeCase)
}

// UnitScan adds individual units to one line.
func UnitScan(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return itemScan(svc, logg, enums.ScanTypeUnit)
}

func itemScan(svc internaldeliveries.Service, logg *logger.Logger, scanType enums.ScanType) http.HandlerFunc {
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
		var body itemScanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithDeliveryID(r.Context(), deliveryID.String())
		if _, err := svc.Item(ctx, deliveryID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scannedBy := firstNonEmpty(body.ScannedBy, middleware.ScannerIDFromContext(r.Context()))
		var result *internaldeliveries.ScanResult
		if scanType == enums.ScanTypeCase {
			result, err = svc.AddCaseScan(ctx, itemID, body.Quantity, scannedBy)
		} else {
			result, err = svc.AddUnitScan(ctx, itemID, body.Quantity, scannedBy)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Adjust overwrites a line's received counters as an operator correction.
func Adjust(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body adjustRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AdjustReceived(r.Context(), internaldeliveries.AdjustInput{
			DeliveryID:   deliveryID,
			ItemID:       itemID,
			CaseReceived: body.CaseReceivedQuantity,
			UnitReceived: body.UnitReceivedQuantity,
			Reason:       body.Reason,
			AdjustedBy:   firstNonEmpty(body.AdjustedBy, middleware.ScannerIDFromContext(r.Context()), defaultActor),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// DeliveryScans pages the scan ledger of a delivery, newest first.
// Filters: matched, barcode, since (RFC3339) and recent.
func DeliveryScans(svc internaldeliveries.Service, ledger scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := validators.ParseURLUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Get(r.Context(), deliveryID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := scanListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.DeliveryID = &deliveryID
		writeScanPage(w, r, ledger, params, logg)
	}
}

// ItemScans lists scans for one line; recent=true limits them to the
// configured recency window.
func ItemScans(svc internaldeliveries.Service, ledger scans.Service, logg *logger.Logger) http.HandlerFunc {
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
		if _, err := svc.Item(r.Context(), deliveryID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := scanListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.DeliveryID = &deliveryID
		params.ItemID = &itemID
		writeScanPage(w, r, ledger, params, logg)
	}
}

func writeScanPage(w http.ResponseWriter, r *http.Request, ledger scans.Service, params scans.ListParams, logg *logger.Logger) {
	if ledger == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan ledger unavailable"))
		return
	}
	result, err := ledger.List(r.Context(), params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WritePage(w, scans.NewViews(result.Scans), result.NextCursor)
}

func scanListParams(r *http.Request) (scans.ListParams, error) {
	q := r.URL.Query()
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return scans.ListParams{}, err
	}
	params := scans.ListParams{
		Barcode: strings.TrimSpace(q.Get("barcode")),
		Params: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(q.Get("cursor")),
		},
	}
	matched, err := validators.ParseQueryBool(r, "matched")
	if err != nil {
		return scans.ListParams{}, err
	}
	params.Matched = matched
	since, err := validators.ParseQueryTime(r, "since")
	if err != nil {
		return scans.ListParams{}, err
	}
	params.Since = since
	recent, err := validators.ParseQueryBool(r, "recent")
	if err != nil {
		return scans.ListParams{}, err
	}
	params.Recent = recent != nil && *recent
	return params, nil
}
