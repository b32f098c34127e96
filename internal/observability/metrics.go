package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talk2db_http_requests_total",
			Help: "Total number of HTTP requests by route pattern.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talk2db_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	completionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talk2db_completion_attempts_total",
			Help: "Total number of language-model completion attempts by outcome.",
		},
		[]string{"outcome"},
	)
	completionRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talk2db_completion_retries_total",
			Help: "Total number of completion retries scheduled after a rate-limit response.",
		},
	)
	generationFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talk2db_generation_fallbacks_total",
			Help: "Total number of model responses that could not be parsed into a SQL statement.",
		},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talk2db_query_executions_total",
			Help: "Total number of generated statements executed, by status.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "talk2db_query_duration_seconds",
			Help:    "Execution latency of generated statements in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	suggestionFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talk2db_suggestion_fallbacks_total",
			Help: "Total number of suggestion requests answered with the static fallback list.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talk2db_exports_total",
			Help: "Total number of result exports by format.",
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		completionAttemptsTotal,
		completionRetriesTotal,
		generationFallbacksTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		suggestionFallbacksTotal,
		exportsTotal,
	)
}

// routeLabel uses the matched ServeMux pattern so archived export keys do not each become a series.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// ObserveCompletionAttempt records one provider call. outcome is "ok", "rate_limited" or "error".
func ObserveCompletionAttempt(outcome string) {
	completionAttemptsTotal.WithLabelValues(outcome).Inc()
}

func IncrementCompletionRetry() {
	completionRetriesTotal.Inc()
}

func IncrementGenerationFallback() {
	generationFallbacksTotal.Inc()
}

func ObserveQueryExecution(failed bool, elapsed time.Duration) {
	status := "ok"
	if failed {
		status = "error"
	}
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementSuggestionFallback() {
	suggestionFallbacksTotal.Inc()
}

func ObserveExport(format string) {
	exportsTotal.WithLabelValues(format).Inc()
}
