package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_queries_total",
			Help: "Total number of natural-language queries by outcome.",
		},
		[]string{"outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_duration_seconds",
			Help:    "End-to-end duration of the question-to-rows pipeline.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	guardRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_guard_rejections_total",
			Help: "Total number of model-produced statements the safety guard rejected.",
		},
	)
	contextOverflowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_context_overflows_total",
			Help: "Total number of requests rejected by the model for exceeding its context window.",
		},
	)
	schemaCacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_schema_cache_events_total",
			Help: "Schema text cache lookups by event (hit, miss).",
		},
		[]string{"event"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_exports_total",
			Help: "Total number of result exports by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		guardRejectionsTotal,
		contextOverflowsTotal,
		schemaCacheEventsTotal,
		exportsTotal,
	)
}

func ObserveQuery(outcome string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementGuardRejection() {
	guardRejectionsTotal.Inc()
}

func IncrementContextOverflow() {
	contextOverflowsTotal.Inc()
}

func ObserveSchemaCache(hit bool) {
	event := "miss"
	if hit {
		event = "hit"
	}
	schemaCacheEventsTotal.WithLabelValues(event).Inc()
}

func ObserveExport(format, outcome string) {
	exportsTotal.WithLabelValues(format, outcome).Inc()
}
