package receiving

import "github.com/angelmondragon/goodsin-backend/pkg/enums"

// Classify maps ordered vs received units onto the live line status.
// It never returns missing.
func Classify(orderedUnits, receivedUnits int) enums.DeliveryItemStatus {
	switch {
	case receivedUnits <= 0:
		return enums.DeliveryItemStatusPending
	case receivedUnits < orderedUnits:
		return enums.DeliveryItemStatusPartial
	case receivedUnits == orderedUnits:
		return enums.DeliveryItemStatusComplete
	default:
		return enums.DeliveryItemStatusExcess
	}
}

// DisplayStatus applies the terminal missing label to lines that were never
// received once their delivery has been completed.
func DisplayStatus(live enums.DeliveryItemStatus, delivery enums.DeliveryStatus) enums.DeliveryItemStatus {
	if delivery == enums.DeliveryStatusCompleted && live == enums.DeliveryItemStatusPending {
		return enums.DeliveryItemStatusMissing
	}
	return live
}
