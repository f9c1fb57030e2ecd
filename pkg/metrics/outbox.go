package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics counts relay outcomes per event type and tracks how far the
// publisher is behind.
type OutboxMetrics struct {
	events    *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_rows",
			Help: "Unpublished outbox rows that still have attempts left.",
		}),
		oldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox row; zero when the backlog is empty.",
		}),
	}
	reg.MustRegister(m.events, m.pending, m.oldestAge)
	return m
}

func (o *OutboxMetrics) Inc(eventType, result string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(eventType, result).Inc()
}

// SetBacklog publishes the current backlog size and the age of its oldest row.
func (o *OutboxMetrics) SetBacklog(pending int64, oldestAge time.Duration) {
	if o == nil || o.pending == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	o.pending.Set(float64(pending))
	o.oldestAge.Set(oldestAge.Seconds())
}

// Enabled reports whether observations are recorded anywhere.
func (o *OutboxMetrics) Enabled() bool {
	return o != nil && o.events != nil
}
