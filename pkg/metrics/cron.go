package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks retention job runs.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// NewCronJobMetrics registers the cron collectors; a nil registerer yields a no-op value.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by job and result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of one cron job run.",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 120, 600},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run; alert when it stops moving.",
		}, []string{"job"}),
		now: time.Now,
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// Observe records one finished run of job.
func (m *CronJobMetrics) Observe(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(m.now().Unix()))
}
