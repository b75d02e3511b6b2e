package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MetricsNamespace prefixes every metric registered by the observability package.
const MetricsNamespace = "bifrost"

// Value reads a single counter or gauge series, e.g.
// observability.DecisionsTotal.WithLabelValues("200").
func Value(c prometheus.Collector) float64 {
	return testutil.ToFloat64(c)
}

// AssertDelta asserts that c moved by exactly delta while fn ran.
func AssertDelta(t *testing.T, c prometheus.Collector, delta float64, fn func()) {
	t.Helper()

	initial := Value(c)
	fn()
	assert.Equal(t, delta, Value(c)-initial, "metric delta mismatch")
}

// AssertDeltaEventually is AssertDelta for work fn only starts, such as
// fire-and-forget notification sends.
func AssertDeltaEventually(t *testing.T, c prometheus.Collector, delta float64, fn func()) {
	t.Helper()

	initial := Value(c)
	fn()
	require.Eventually(t, func() bool {
		return Value(c) == initial+delta
	}, 2*time.Second, 20*time.Millisecond, "metric failed to reach delta %+.0f", delta)
}

// HistogramSamples returns the sample count of a histogram series. name is
// relative to the namespace ("decisioning_duration_seconds").
// Histograms are read through the default gatherer because testutil cannot
// reduce them to a single value.
func HistogramSamples(t *testing.T, name string, labels map[string]string) uint64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	fullName := MetricsNamespace + "_" + name
	for _, family := range families {
		if family.GetName() != fullName {
			continue
		}
		for _, m := range family.GetMetric() {
			if m.GetHistogram() != nil && hasLabels(m, labels) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

// AssertHistogramRecorded asserts that a histogram series holds at least one sample.
func AssertHistogramRecorded(t *testing.T, name string, labels map[string]string) {
	t.Helper()

	assert.NotZero(t, HistogramSamples(t, name, labels), "histogram %s_%s%v has no samples", MetricsNamespace, name, labels)
}

func hasLabels(m *io_prometheus_client.Metric, want map[string]string) bool {
	found := 0
	for _, pair := range m.GetLabel() {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(want)
}
