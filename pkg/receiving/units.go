// Package receiving holds the pure reconciliation rules for inbound deliveries:
// case/unit conversion, line totals, discrepancy classification and the
// delivery lifecycle. Nothing here touches storage or the clock.
package receiving

import "github.com/angelmondragon/goodsin-backend/pkg/enums"

// Line is the quantity view of one delivery item. Nil pointers mean the
// source never supplied the value.
type Line struct {
	QuantityType enums.QuantityType

	OrderedQuantity  *int
	ReceivedQuantity *int

	CaseOrderedQuantity  *int
	CaseReceivedQuantity *int
	UnitsPerCase         *int
	SupplierCaseUnits    *int

	UnitOrderedQuantity  *int
	UnitReceivedQuantity *int
}

// EffectiveCaseUnits resolves the units in one case: supplier catalog size,
// then the order import size, then 1. The result is never below 1.
func EffectiveCaseUnits(l Line) int {
	if v := intValue(l.SupplierCaseUnits); v > 0 {
		return v
	}
	if v := intValue(l.UnitsPerCase); v > 0 {
		return v
	}
	return 1
}

func CasesToUnits(l Line, cases int) int {
	return cases * EffectiveCaseUnits(l)
}

// UnitsToCases floors: partial cases are never synthesized.
func UnitsToCases(l Line, units int) int {
	size := EffectiveCaseUnits(l)
	if size <= 0 {
		return 0
	}
	return units / size
}

func intValue(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// IntPtr is a small helper for building lines in callers and tests.
func IntPtr(v int) *int {
	return &v
}
