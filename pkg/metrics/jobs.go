package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics covers the maintenance worker. Affected counts what a job
// changed (orders expired, rows deleted).
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	affected *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of maintenance job runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Maintenance job runs by outcome.",
	}, []string{"job", "outcome"})
	affected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_affected_total",
		Help: "Records changed by maintenance jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, affected)
	return &JobMetrics{duration: duration, runs: runs, affected: affected}
}

// ObserveRun records one run; a nil err counts as success.
func (j *JobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if j == nil || j.duration == nil {
		return
	}
	name := normalizeLabel(job)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	j.duration.WithLabelValues(name).Observe(elapsed.Seconds())
	j.runs.WithLabelValues(name, outcome).Inc()
}

func (j *JobMetrics) AddAffected(job string, n int64) {
	if j == nil || j.affected == nil || n <= 0 {
		return
	}
	j.affected.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}
