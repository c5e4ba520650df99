// Package metrics exposes Prometheus gauges and counters for the
// conversation demultiplexer and the Scenario interpreter: how many
// conversations are active per platform, and how matching sessions
// resolve (matched, failed, cancelled).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConversations tracks currently running per-conversation
	// workers, labeled by platform.
	ActiveConversations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "canoe_active_conversations",
			Help: "Number of active per-conversation workers",
		},
		[]string{"platform"},
	)

	// SessionsTotal counts matching sessions by terminal outcome.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canoe_sessions_total",
			Help: "Total number of matching sessions by outcome",
		},
		[]string{"platform", "outcome"},
	)

	// SessionDuration tracks how long a matching session ran before
	// reaching a terminal state.
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canoe_session_duration_seconds",
			Help:    "Matching session duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"platform", "outcome"},
	)

	// EventsDroppedTotal counts inbound events dropped by the rate
	// limiter or demultiplexer, labeled by reason.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canoe_events_dropped_total",
			Help: "Total number of inbound events dropped",
		},
		[]string{"platform", "reason"},
	)

	// IncidentsReportedTotal counts incidents filed to the tracking
	// issue.
	IncidentsReportedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canoe_incidents_reported_total",
			Help: "Total number of incidents reported to the tracking issue",
		},
	)
)

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordConversationSpawned increments the active-conversation gauge
// for a platform.
func RecordConversationSpawned(platform string) {
	ActiveConversations.WithLabelValues(platform).Inc()
}

// RecordConversationEvicted decrements the active-conversation gauge
// for a platform.
func RecordConversationEvicted(platform string) {
	ActiveConversations.WithLabelValues(platform).Dec()
}

// RecordSessionOutcome records a terminal matching session outcome and
// its duration in seconds.
func RecordSessionOutcome(platform, outcome string, durationSeconds float64) {
	SessionsTotal.WithLabelValues(platform, outcome).Inc()
	SessionDuration.WithLabelValues(platform, outcome).Observe(durationSeconds)
}

// RecordEventDropped records an inbound event dropped for the given
// reason (e.g. "rate_limited").
func RecordEventDropped(platform, reason string) {
	EventsDroppedTotal.WithLabelValues(platform, reason).Inc()
}

// RecordIncidentReported increments the incident counter.
func RecordIncidentReported() {
	IncidentsReportedTotal.Inc()
}
