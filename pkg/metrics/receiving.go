package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "goodsin"

// ReceivingMetrics counts scan traffic and delivery lifecycle moves.
type ReceivingMetrics struct {
	scans       *prometheus.CounterVec
	units       *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewReceivingMetrics(reg prometheus.Registerer) *ReceivingMetrics {
	if reg == nil {
		return &ReceivingMetrics{}
	}
	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Scans recorded against deliveries.",
	}, []string{"type", "matched"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "received_units_total",
		Help:      "Unit-equivalent quantity received through matched scans.",
	}, []string{"type"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_transitions_total",
		Help:      "Delivery status transitions.",
	}, []string{"to"})
	reg.MustRegister(scans, units, transitions)
	return &ReceivingMetrics{scans: scans, units: units, transitions: transitions}
}

func (m *ReceivingMetrics) ObserveScan(scanType string, matched bool, unitsEquivalent int) {
	if m == nil || m.scans == nil {
		return
	}
	label := normalizeLabel(scanType)
	m.scans.WithLabelValues(label, strconv.FormatBool(matched)).Inc()
	if matched && unitsEquivalent > 0 {
		m.units.WithLabelValues(label).Add(float64(unitsEquivalent))
	}
}

func (m *ReceivingMetrics) ObserveTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}
