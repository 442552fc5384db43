package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters the ingestion pipeline's error policy
// requires: one for redelivered messages, one for deterministic parse
// errors, one for invariant-violation warnings (§7).
type Metrics struct {
	Redelivered   prometheus.Counter
	ParseErrors   prometheus.Counter
	ApplyWarnings prometheus.Counter
}

// NewMetrics registers per-stream counters against reg. Passing a
// prometheus.NewRegistry (rather than the global DefaultRegisterer)
// keeps two Loops on the same stream name from colliding in tests.
func NewMetrics(reg prometheus.Registerer, stream string) *Metrics {
	m := &Metrics{
		Redelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cnft_indexer_ingest_redelivered_total",
			Help:        "Messages redelivered by the bus after a transient processing error.",
			ConstLabels: prometheus.Labels{"stream": stream},
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cnft_indexer_ingest_parse_errors_total",
			Help:        "Deterministic parse errors encountered, acked and skipped.",
			ConstLabels: prometheus.Labels{"stream": stream},
		}),
		ApplyWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cnft_indexer_ingest_apply_warnings_total",
			Help:        "Invariant violations (e.g. stale seq) swallowed as no-ops.",
			ConstLabels: prometheus.Labels{"stream": stream},
		}),
	}
	reg.MustRegister(m.Redelivered, m.ParseErrors, m.ApplyWarnings)
	return m
}
