package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks calls to the payment processor. A nil value is a
// valid no-op recorder.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_call_duration_seconds",
		Help:    "Latency of payment gateway operations including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_calls_total",
		Help: "Payment gateway operations by final outcome.",
	}, []string{"operation", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_retries_total",
		Help: "Retried payment gateway attempts.",
	}, []string{"operation"})
	reg.MustRegister(duration, calls, retries)
	return &GatewayMetrics{duration: duration, calls: calls, retries: retries}
}

func (g *GatewayMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	g.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	g.calls.WithLabelValues(op, normalizeLabel(outcome)).Inc()
}

func (g *GatewayMetrics) IncRetry(operation string) {
	if g == nil || g.retries == nil {
		return
	}
	g.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
