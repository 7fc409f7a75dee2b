package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsPerJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveDuration("delivery-state-refresh", 250*time.Millisecond)
	m.IncSuccess("delivery-state-refresh")
	m.IncSuccess("delivery-state-refresh")
	m.IncFailure("outbox-retention")
	m.IncFailure("")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, tc := range []struct {
		metric, job string
		want        float64
	}{
		{"goodsin_job_success", "delivery-state-refresh", 2},
		{"goodsin_job_failure", "outbox-retention", 1},
		{"goodsin_job_failure", "unknown", 1},
	} {
		got, err := fetchCounterValue(mfs, tc.metric, "job", tc.job)
		require.NoError(t, err, tc.metric)
		assert.Equal(t, tc.want, got, "%s{job=%s}", tc.metric, tc.job)
	}

	mf := findMetricFamily(mfs, "goodsin_job_duration_seconds")
	require.NotNil(t, mf)
	metric := findMetric(mf, "job", "delivery-state-refresh")
	require.NotNil(t, metric)
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.25, metric.GetHistogram().GetSampleSum(), 1e-9)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not registered", name)
	}
	metric := findMetric(mf, label, value)
	if metric == nil {
		return 0, fmt.Errorf("metric %q has no series %s=%q", name, label, value)
	}
	return metric.GetCounter().GetValue(), nil
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func findMetric(mf *dto.MetricFamily, label, value string) *dto.Metric {
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, lp := range labels {
		if lp.GetName() == name {
			return lp.GetValue() == value
		}
	}
	return false
}
