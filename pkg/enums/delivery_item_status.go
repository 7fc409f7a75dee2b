package enums

import "fmt"

// DeliveryItemStatus maps to the delivery_item_status_enum enum in Postgres.
type DeliveryItemStatus string

const (
	DeliveryItemStatusPending  DeliveryItemStatus = "pending"
	DeliveryItemStatusPartial  DeliveryItemStatus = "partial"
	DeliveryItemStatusComplete DeliveryItemStatus = "complete"
	DeliveryItemStatusExcess   DeliveryItemStatus = "excess"
	// DeliveryItemStatusMissing is only ever stamped on pending lines when
	// their delivery is completed.
	DeliveryItemStatusMissing DeliveryItemStatus = "missing"
)

var validDeliveryItemStatuses = []DeliveryItemStatus{
	DeliveryItemStatusPending,
	DeliveryItemStatusPartial,
	DeliveryItemStatusComplete,
	DeliveryItemStatusExcess,
	DeliveryItemStatusMissing,
}

func (s DeliveryItemStatus) IsValid() bool {
	for _, candidate := range validDeliveryItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsDiscrepancy reports whether the line received something other than its order.
func (s DeliveryItemStatus) IsDiscrepancy() bool {
	return s != DeliveryItemStatusComplete
}

func ParseDeliveryItemStatus(value string) (DeliveryItemStatus, error) {
	for _, candidate := range validDeliveryItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery item status %q", value)
}
