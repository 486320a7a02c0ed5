package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)

var (
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_llm_requests_total",
			Help: "Model calls by outcome",
		},
		[]string{"model", "outcome"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_llm_request_duration_seconds",
			Help:    "Latency of successful model calls, retries included",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)

	LLMRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_llm_retries_total",
			Help: "Retried model call attempts",
		},
		[]string{"model"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_llm_tokens_total",
			Help: "Tokens consumed, by direction",
		},
		[]string{"model", "direction"},
	)

	LLMCostCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_llm_cost_cents_total",
			Help: "Estimated spend in cents",
		},
		[]string{"model"},
	)

	// 1 when the breaker is open.
	CircuitBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ai_llm_circuit_open",
			Help: "Whether the LLM circuit breaker is open",
		},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tool_invocations_total",
			Help: "Tool handler invocations",
		},
		[]string{"tool", "outcome"},
	)

	RetrievalChunks = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_retrieval_chunks",
			Help:    "Chunks packed into context per retrieval",
			Buckets: prometheus.LinearBuckets(0, 2, 10),
		},
		[]string{"state"},
	)

	QuotaDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_quota_denials_total",
			Help: "Requests denied by quota checks",
		},
		[]string{"reason"},
	)

	UnmappedCitations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_citations_unmapped_total",
			Help: "Citation markers in model output with no matching source",
		},
	)

	WebSearchCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_websearch_cache_total",
			Help: "Web search cache lookups by result",
		},
		[]string{"result"},
	)
)
