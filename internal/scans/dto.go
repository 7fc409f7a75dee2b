package scans

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
)

// View is the API shape of one ledger row.
type View struct {
	ID              int64          `json:"id"`
	DeliveryID      uuid.UUID      `json:"delivery_id"`
	DeliveryItemID  *uuid.UUID     `json:"delivery_item_id,omitempty"`
	Barcode         string         `json:"barcode"`
	Quantity        int            `json:"quantity"`
	Matched         bool           `json:"matched"`
	ScanType        enums.ScanType `json:"scan_type,omitempty"`
	UnitsEquivalent int            `json:"units_equivalent"`
	ScannedBy       string         `json:"scanned_by"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func NewView(scan models.DeliveryScan) View {
	v := View{
		ID:             scan.ID,
		DeliveryID:     scan.DeliveryID,
		DeliveryItemID: scan.DeliveryItemID,
		Barcode:        scan.Barcode,
		Quantity:       scan.Quantity,
		Matched:        scan.Matched,
		ScannedBy:      scan.ScannedBy,
		CreatedAt:      scan.CreatedAt,
	}
	if len(scan.Metadata) > 0 {
		v.Metadata = map[string]any(scan.Metadata)
		if raw, ok := scan.Metadata[MetaScanType].(string); ok {
			v.ScanType = enums.ScanType(raw)
		}
		v.UnitsEquivalent = metaInt(scan.Metadata[MetaUnitsEquivalent])
	}
	return v
}

func NewViews(rows []models.DeliveryScan) []View {
	out := make([]View, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewView(row))
	}
	return out
}

func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
