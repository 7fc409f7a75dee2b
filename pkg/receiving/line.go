package receiving

import "github.com/angelmondragon/goodsin-backend/pkg/enums"

// TotalOrderedUnits is case units plus individual units. Rows that predate
// dual tracking fall back to the legacy ordered_quantity.
func TotalOrderedUnits(l Line) int {
	return totalUnits(l, l.CaseOrderedQuantity, l.UnitOrderedQuantity, l.OrderedQuantity)
}

// TotalReceivedUnits mirrors TotalOrderedUnits over the received columns.
func TotalReceivedUnits(l Line) int {
	return totalUnits(l, l.CaseReceivedQuantity, l.UnitReceivedQuantity, l.ReceivedQuantity)
}

func totalUnits(l Line, cases, units, legacy *int) int {
	caseUnits := CasesToUnits(l, intValue(cases))
	individual := intValue(units)
	if caseUnits == 0 && individual == 0 && legacy != nil {
		if l.QuantityType == enums.QuantityTypeCase {
			return CasesToUnits(l, *legacy)
		}
		return *legacy
	}
	return caseUnits + individual
}

// LegacyReceived is the value the legacy received_quantity column must hold
// after any scan: the case count on case lines, total units otherwise.
func LegacyReceived(l Line) int {
	if l.QuantityType == enums.QuantityTypeCase {
		return intValue(l.CaseReceivedQuantity)
	}
	return TotalReceivedUnits(l)
}

// LineStatus classifies the line from its unit-equivalent totals.
func LineStatus(l Line) enums.DeliveryItemStatus {
	return Classify(TotalOrderedUnits(l), TotalReceivedUnits(l))
}

// LineState bundles everything derived from a line's counters.
type LineState struct {
	OrderedUnits   int
	ReceivedUnits  int
	LegacyReceived int
	Status         enums.DeliveryItemStatus
}

func Derive(l Line) LineState {
	ordered := TotalOrderedUnits(l)
	received := TotalReceivedUnits(l)
	return LineState{
		OrderedUnits:   ordered,
		ReceivedUnits:  received,
		LegacyReceived: LegacyReceived(l),
		Status:         Classify(ordered, received),
	}
}
