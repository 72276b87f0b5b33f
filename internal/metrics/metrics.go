package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision pipeline metrics for production monitoring
var (
	// Analysis run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_runs_total",
			Help: "Total number of analysis runs started",
		},
		[]string{"scenario", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantops_ai_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
		[]string{"scenario"},
	)

	// Rule engine metrics
	RuleFiringsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_rule_firings_total",
			Help: "Total number of rule findings that fired",
		},
		[]string{"rule", "severity"},
	)

	// Prediction scorer metrics
	ScoringFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_scoring_fallbacks_total",
			Help: "Total number of sub-scorer fallback substitutions",
		},
		[]string{"kind"},
	)

	ModelTrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_model_trainings_total",
			Help: "Total number of model registry training runs",
		},
		[]string{"model", "status"},
	)

	// Reasoning stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantops_ai_stage_duration_seconds",
			Help:    "Reasoning stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"stage"},
	)

	StageDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_stage_degraded_total",
			Help: "Total number of reasoning stages that degraded to empty output",
		},
		[]string{"stage", "reason"},
	)

	RecommendationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_recommendations_emitted_total",
			Help: "Total number of recommendations emitted by synthesis",
		},
		[]string{"action"},
	)

	RecommendationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plantops_ai_recommendations_dropped_total",
			Help: "Total number of ungrounded recommendations dropped by synthesis",
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantops_ai_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_llm_retries_total",
			Help: "Total number of retried LLM calls",
		},
		[]string{"provider"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plantops_ai_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantops_ai_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)
)
