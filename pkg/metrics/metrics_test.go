package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestGatewayMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.Observe("create_intent", "success", 250*time.Millisecond)
	m.Observe("create_intent", "failure", 10*time.Millisecond)
	m.IncRetry("create_intent")
	m.IncRetry("create_intent")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "payment_gateway_calls_total", map[string]string{"operation": "create_intent", "outcome": "success"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "payment_gateway_retries_total", map[string]string{"operation": "create_intent"})
	require.NoError(t, err)
	require.Equal(t, float64(2), got)

	sum, err := fetchHistogramSum(mfs, "payment_gateway_call_duration_seconds", map[string]string{"operation": "create_intent"})
	require.NoError(t, err)
	require.Greater(t, sum, 0.0)
}

func TestHTTPMetricsCountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/checkout", "201", 40*time.Millisecond)
	m.Observe("POST", "/api/checkout", "201", 60*time.Millisecond)
	m.Observe("POST", "/api/checkout", "409", 5*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "http_requests_total", map[string]string{"method": "POST", "route": "/api/checkout", "status": "201"})
	require.NoError(t, err)
	require.Equal(t, float64(2), got)

	var nilMetrics *HTTPMetrics
	require.NotPanics(t, func() { nilMetrics.Observe("GET", "", "200", time.Millisecond) })
}

func TestOutboxMetricsNormalizesEmptyLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order.created")
	m.IncFailed("")
	m.IncExhausted("refund.succeeded")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "outbox_events_failed_total", map[string]string{"event_type": "unknown"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got)
}

func TestJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("outbox-retention", 20*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", 5*time.Millisecond, errors.New("db down"))
	m.AddAffected("outbox-retention", 12)
	m.AddAffected("outbox-retention", 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "cron_job_runs_total", map[string]string{"job": "outbox-retention", "outcome": "failure"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "cron_job_affected_total", map[string]string{"job": "outbox-retention"})
	require.NoError(t, err)
	require.Equal(t, float64(12), got)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var g *GatewayMetrics
	g.Observe("x", "y", time.Second)
	g.IncRetry("x")
	NewOutboxMetrics(nil).IncPublished("x")
	var j *JobMetrics
	j.ObserveRun("x", time.Second, nil)
	NewJobMetrics(nil).AddAffected("x", 3)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
