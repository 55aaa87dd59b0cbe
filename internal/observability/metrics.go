package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the fetch pipeline. The
// session reset/restart counters exist because Clear and Destroy are
// fails-soft operations: their errors are never propagated, so the
// counters are the only externally visible signal that the expensive
// restart path was taken.
type Metrics struct {
	FetchesTotal    *prometheus.CounterVec
	FetchFailures   *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	SessionResets   prometheus.Counter
	SessionRestarts prometheus.Counter
	Recoveries      prometheus.Counter
}

// NewMetrics creates and registers the service metrics on the given
// registerer. Pass prometheus.NewRegistry() in tests to avoid global
// registration conflicts.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfresolver",
			Name:      "fetches_total",
			Help:      "Completed fetch requests by strategy.",
		}, []string{"strategy"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfresolver",
			Name:      "fetch_failures_total",
			Help:      "Failed fetch requests by stage.",
		}, []string{"stage"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cfresolver",
			Name:      "fetch_duration_seconds",
			Help:      "End to end fetch latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfresolver",
			Name:      "session_resets_total",
			Help:      "In-place session state clears.",
		}),
		SessionRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfresolver",
			Name:      "session_restarts_total",
			Help:      "Full browser restarts taken when an in-place clear failed.",
		}),
		Recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfresolver",
			Name:      "session_recoveries_total",
			Help:      "Full session recreations triggered by fetch failures.",
		}),
	}

	reg.MustRegister(
		m.FetchesTotal,
		m.FetchFailures,
		m.FetchDuration,
		m.SessionResets,
		m.SessionRestarts,
		m.Recoveries,
	)
	return m
}
