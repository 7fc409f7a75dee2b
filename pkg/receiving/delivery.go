package receiving

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/goodsin-backend/pkg/enums"
)

// DeliveryEvent drives the delivery lifecycle.
type DeliveryEvent string

const (
	EventScan     DeliveryEvent = "scan"
	EventComplete DeliveryEvent = "complete"
	EventCancel   DeliveryEvent = "cancel"
)

var ErrIllegalTransition = errors.New("illegal delivery transition")

// NextDeliveryStatus is the single transition function for deliveries:
// draft -> receiving on the first scan, receiving -> completed or cancelled
// on an operator decision. Scans keep a receiving delivery where it is.
func NextDeliveryStatus(current enums.DeliveryStatus, event DeliveryEvent) (enums.DeliveryStatus, error) {
	switch event {
	case EventScan:
		switch current {
		case enums.DeliveryStatusDraft, enums.DeliveryStatusReceiving:
			return enums.DeliveryStatusReceiving, nil
		}
	case EventComplete:
		if current == enums.DeliveryStatusReceiving {
			return enums.DeliveryStatusCompleted, nil
		}
	case EventCancel:
		if current == enums.DeliveryStatusReceiving {
			return enums.DeliveryStatusCancelled, nil
		}
	default:
		return current, fmt.Errorf("unknown delivery event %q", event)
	}
	return current, fmt.Errorf("%w: %s on %s delivery", ErrIllegalTransition, event, current)
}

// CompletionPercentage is line-count based: 100 * complete lines / lines.
func CompletionPercentage(statuses []enums.DeliveryItemStatus) float64 {
	if len(statuses) == 0 {
		return 0
	}
	complete := 0
	for _, s := range statuses {
		if s == enums.DeliveryItemStatusComplete {
			complete++
		}
	}
	return 100 * float64(complete) / float64(len(statuses))
}

// StatusCounts tallies lines per status for progress views.
func StatusCounts(statuses []enums.DeliveryItemStatus) map[enums.DeliveryItemStatus]int {
	counts := make(map[enums.DeliveryItemStatus]int, len(statuses))
	for _, s := range statuses {
		counts[s]++
	}
	return counts
}
