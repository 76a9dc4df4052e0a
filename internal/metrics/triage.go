package metrics

import "github.com/prometheus/client_golang/prometheus"

// Language model and triage decision metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total language model completions by collaborator",
		},
		[]string{"provider", "collaborator", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language model completion duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"provider", "collaborator"},
	)

	// FallbacksTotal counts degraded answers: heuristic extraction, generic next action.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Collaborator fallbacks by reason",
		},
		[]string{"collaborator", "reason"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Triage decisions by match type",
		},
		[]string{"match_type"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter, by route pattern",
		},
		[]string{"route"},
	)

	BestMatchScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "best_match_score",
			Help:      "Score of the top KB match per triaged ticket",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

var triageMetricsRegistered bool

// RegisterTriageMetrics registers language model and decision metrics. Must be called once from main.
func RegisterTriageMetrics() {
	if triageMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(FallbacksTotal)
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(BestMatchScore)
	prometheus.MustRegister(RateLimitedTotal)
	triageMetricsRegistered = true
}
