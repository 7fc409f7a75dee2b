package receiving

import (
	"errors"
	"testing"

	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveCaseUnitsPrecedence(t *testing.T) {
	cases := []struct {
		name string
		line Line
		want int
	}{
		{"supplier wins", Line{SupplierCaseUnits: IntPtr(12), UnitsPerCase: IntPtr(6)}, 12},
		{"import size", Line{UnitsPerCase: IntPtr(6)}, 6},
		{"zero supplier ignored", Line{SupplierCaseUnits: IntPtr(0), UnitsPerCase: IntPtr(4)}, 4},
		{"negative ignored", Line{SupplierCaseUnits: IntPtr(-3)}, 1},
		{"default", Line{}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EffectiveCaseUnits(tc.line))
		})
	}
}

func TestUnitsToCasesRoundTrip(t *testing.T) {
	lines := []Line{
		{},
		{UnitsPerCase: IntPtr(6)},
		{SupplierCaseUnits: IntPtr(24), UnitsPerCase: IntPtr(6)},
	}
	for _, l := range lines {
		for c := 0; c <= 50; c++ {
			require.Equal(t, c, UnitsToCases(l, CasesToUnits(l, c)))
		}
	}
}

func TestUnitsToCasesFloors(t *testing.T) {
	l := Line{UnitsPerCase: IntPtr(6)}
	assert.Equal(t, 1, UnitsToCases(l, 11))
	assert.Equal(t, 0, UnitsToCases(l, 5))
}

func TestClassifyTable(t *testing.T) {
	for ordered := 0; ordered <= 20; ordered++ {
		for received := 0; received <= 20; received++ {
			got := Classify(ordered, received)
			switch {
			case received == 0:
				require.Equal(t, enums.DeliveryItemStatusPending, got)
			case received < ordered:
				require.Equal(t, enums.DeliveryItemStatusPartial, got)
			case received == ordered:
				require.Equal(t, enums.DeliveryItemStatusComplete, got)
			default:
				require.Equal(t, enums.DeliveryItemStatusExcess, got)
			}
			require.NotEqual(t, enums.DeliveryItemStatusMissing, got)
		}
	}
}

func TestCaseLineScenario(t *testing.T) {
	l := Line{
		QuantityType:        enums.QuantityTypeCase,
		CaseOrderedQuantity: IntPtr(2),
		UnitsPerCase:        IntPtr(6),
	}

	l.CaseReceivedQuantity = IntPtr(1)
	st := Derive(l)
	assert.Equal(t, 6, st.ReceivedUnits)
	assert.Equal(t, 12, st.OrderedUnits)
	assert.Equal(t, enums.DeliveryItemStatusPartial, st.Status)
	assert.Equal(t, 1, st.LegacyReceived)

	l.CaseReceivedQuantity = IntPtr(2)
	st = Derive(l)
	assert.Equal(t, 12, st.ReceivedUnits)
	assert.Equal(t, enums.DeliveryItemStatusComplete, st.Status)

	l.CaseReceivedQuantity = IntPtr(3)
	st = Derive(l)
	assert.Equal(t, 18, st.ReceivedUnits)
	assert.Equal(t, enums.DeliveryItemStatusExcess, st.Status)
	assert.Equal(t, 3, st.LegacyReceived)
}

func TestLegacyOnlyLine(t *testing.T) {
	l := Line{QuantityType: enums.QuantityTypeUnit, OrderedQuantity: IntPtr(10)}
	assert.Equal(t, 10, TotalOrderedUnits(l))
	assert.Equal(t, enums.DeliveryItemStatusPending, LineStatus(l))

	l.UnitReceivedQuantity = IntPtr(10)
	st := Derive(l)
	assert.Equal(t, enums.DeliveryItemStatusComplete, st.Status)
	assert.Equal(t, 10, st.LegacyReceived)
}

func TestLegacyCaseFallbackConverts(t *testing.T) {
	l := Line{QuantityType: enums.QuantityTypeCase, OrderedQuantity: IntPtr(3), UnitsPerCase: IntPtr(4)}
	assert.Equal(t, 12, TotalOrderedUnits(l))

	l.ReceivedQuantity = IntPtr(2)
	assert.Equal(t, 8, TotalReceivedUnits(l))
	assert.Equal(t, enums.DeliveryItemStatusPartial, LineStatus(l))
}

func TestMixedLineSumsBothCounters(t *testing.T) {
	l := Line{
		QuantityType:         enums.QuantityTypeMixed,
		CaseOrderedQuantity:  IntPtr(1),
		UnitOrderedQuantity:  IntPtr(3),
		SupplierCaseUnits:    IntPtr(12),
		CaseReceivedQuantity: IntPtr(1),
		UnitReceivedQuantity: IntPtr(3),
	}
	st := Derive(l)
	assert.Equal(t, 15, st.OrderedUnits)
	assert.Equal(t, 15, st.ReceivedUnits)
	assert.Equal(t, 15, st.LegacyReceived)
	assert.Equal(t, enums.DeliveryItemStatusComplete, st.Status)
}

func TestReceivedTotalsMonotonic(t *testing.T) {
	l := Line{QuantityType: enums.QuantityTypeMixed, UnitsPerCase: IntPtr(6), CaseOrderedQuantity: IntPtr(2)}
	scans := []struct {
		isCase bool
		qty    int
	}{{true, 1}, {false, 2}, {false, 1}, {true, 2}, {false, 5}}

	cases, units := 0, 0
	prev := TotalReceivedUnits(l)
	for _, s := range scans {
		if s.isCase {
			cases += s.qty
		} else {
			units += s.qty
		}
		l.CaseReceivedQuantity = IntPtr(cases)
		l.UnitReceivedQuantity = IntPtr(units)
		cur := TotalReceivedUnits(l)
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 26, prev)
}

func TestDisplayStatusMissing(t *testing.T) {
	assert.Equal(t, enums.DeliveryItemStatusMissing,
		DisplayStatus(enums.DeliveryItemStatusPending, enums.DeliveryStatusCompleted))
	assert.Equal(t, enums.DeliveryItemStatusPending,
		DisplayStatus(enums.DeliveryItemStatusPending, enums.DeliveryStatusReceiving))
	assert.Equal(t, enums.DeliveryItemStatusPartial,
		DisplayStatus(enums.DeliveryItemStatusPartial, enums.DeliveryStatusCompleted))
}

func TestTaxHelpers(t *testing.T) {
	rate := decimal.NewFromInt(60)
	assert.True(t, IsPotentialDepositScheme(rate))
	assert.False(t, IsPotentialDepositScheme(decimal.NewFromInt(50)))

	assert.True(t, RecommendedTaxRate(rate, decimal.NullDecimal{}).Equal(rate))
	norm := decimal.NullDecimal{Decimal: decimal.NewFromInt(20), Valid: true}
	assert.True(t, RecommendedTaxRate(rate, norm).Equal(decimal.NewFromInt(20)))

	assert.True(t, LineCost(12, decimal.RequireFromString("0.45")).Equal(decimal.RequireFromString("5.4")))
}

func TestNextDeliveryStatus(t *testing.T) {
	next, err := NextDeliveryStatus(enums.DeliveryStatusDraft, EventScan)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusReceiving, next)

	next, err = NextDeliveryStatus(enums.DeliveryStatusReceiving, EventScan)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusReceiving, next)

	next, err = NextDeliveryStatus(enums.DeliveryStatusReceiving, EventComplete)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusCompleted, next)

	next, err = NextDeliveryStatus(enums.DeliveryStatusReceiving, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusCancelled, next)

	illegal := []struct {
		from  enums.DeliveryStatus
		event DeliveryEvent
	}{
		{enums.DeliveryStatusDraft, EventComplete},
		{enums.DeliveryStatusDraft, EventCancel},
		{enums.DeliveryStatusCompleted, EventScan},
		{enums.DeliveryStatusCancelled, EventScan},
		{enums.DeliveryStatusCompleted, EventCancel},
		{enums.DeliveryStatusCancelled, EventComplete},
	}
	for _, tc := range illegal {
		got, err := NextDeliveryStatus(tc.from, tc.event)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIllegalTransition))
		assert.Equal(t, tc.from, got)
	}

	_, err = NextDeliveryStatus(enums.DeliveryStatusDraft, DeliveryEvent("reopen"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIllegalTransition))
}

func TestCompletionPercentage(t *testing.T) {
	assert.Equal(t, 0.0, CompletionPercentage(nil))

	statuses := make([]enums.DeliveryItemStatus, 0, 10)
	for i := 0; i < 9; i++ {
		statuses = append(statuses, enums.DeliveryItemStatusComplete)
	}
	statuses = append(statuses, enums.DeliveryItemStatusPartial)
	assert.InDelta(t, 90.0, CompletionPercentage(statuses), 0.0001)

	counts := StatusCounts(statuses)
	assert.Equal(t, 9, counts[enums.DeliveryItemStatusComplete])
	assert.Equal(t, 1, counts[enums.DeliveryItemStatusPartial])
}
