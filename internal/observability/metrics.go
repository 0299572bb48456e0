package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dietlog_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// AuthFailures counts rejected credentials by gate and reason.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietlog_auth_failures_total",
		Help: "Total number of rejected authentication attempts",
	}, []string{"gate", "reason"})

	// EmailsSent counts verification emails by driver and outcome.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietlog_emails_sent_total",
		Help: "Total number of verification emails attempted",
	}, []string{"driver", "outcome"})

	// UserLifecycleEvents counts registrations, verifications and logins.
	UserLifecycleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietlog_user_lifecycle_events_total",
		Help: "Total number of user lifecycle events",
	}, []string{"event"})

	// CacheLookups counts cache-aside lookups by outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietlog_cache_lookups_total",
		Help: "Total number of cache lookups by outcome",
	}, []string{"outcome"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RecordAuthFailure increments the auth failure counter.
func RecordAuthFailure(gate, reason string) {
	AuthFailures.WithLabelValues(gate, reason).Inc()
}

// RecordEmail increments the email counter.
func RecordEmail(driver string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	EmailsSent.WithLabelValues(driver, outcome).Inc()
}

// RecordUserEvent increments the lifecycle counter.
func RecordUserEvent(event string) {
	UserLifecycleEvents.WithLabelValues(event).Inc()
}

// RecordCacheLookup increments the cache lookup counter with "hit", "miss" or "error".
func RecordCacheLookup(outcome string) {
	CacheLookups.WithLabelValues(outcome).Inc()
}
