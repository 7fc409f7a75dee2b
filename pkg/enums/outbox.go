package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateDelivery     OutboxAggregateType = "delivery"
	AggregateDeliveryItem OutboxAggregateType = "delivery_item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateDelivery,
	AggregateDeliveryItem,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventDeliveryCreated        OutboxEventType = "delivery_created"
	EventDeliveryScanRecorded   OutboxEventType = "delivery_scan_recorded"
	EventDeliveryBarcodeUnknown OutboxEventType = "delivery_barcode_unmatched"
	EventDeliveryStatusChanged  OutboxEventType = "delivery_status_changed"
	EventDeliveryItemAdjusted   OutboxEventType = "delivery_item_adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventDeliveryCreated,
	EventDeliveryScanRecorded,
	EventDeliveryBarcodeUnknown,
	EventDeliveryStatusChanged,
	EventDeliveryItemAdjusted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
