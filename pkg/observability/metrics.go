// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the unigen gateway and engine.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for provider latencies,
// ranging from 50ms to 120s.
var LLMBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts gateway HTTP requests by method, status class and route pattern.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records gateway request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unigen_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unigen_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts dispatched provider operations by outcome.
	// The status label is "success" or the error type.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "operation", "status"},
	)

	// ProviderLatency records provider operation latency in seconds,
	// retries included.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unigen_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "operation"},
	)

	// ProviderRetriesTotal counts retry attempts after retryable failures.
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_provider_retries_total",
			Help: "Provider retries",
		},
		[]string{"provider", "operation"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// StreamEventsTotal counts events delivered by stream dispatchers.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_stream_events_total",
			Help: "Stream events dispatched",
		},
		[]string{"kind"},
	)

	// ListenerFailuresTotal counts listeners that returned an error or panicked.
	ListenerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_stream_listener_failures_total",
			Help: "Stream listener failures",
		},
		[]string{"kind", "reason"},
	)

	// ApprovalTransitionsTotal counts approval state transitions per tool.
	ApprovalTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_approval_transitions_total",
			Help: "Approval state transitions",
		},
		[]string{"tool", "state"},
	)

	// ApprovalsPending tracks approvals awaiting a decision.
	ApprovalsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unigen_approvals_pending",
			Help: "Approvals awaiting a decision",
		},
	)

	// CacheLookupsTotal counts catalog cache lookups by result
	// (hit, warm, miss, shared, bypass).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_cache_lookups_total",
			Help: "Catalog cache lookups",
		},
		[]string{"resource", "result"},
	)

	// CacheInvalidationsTotal counts explicit cache invalidations.
	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_cache_invalidations_total",
			Help: "Catalog cache invalidations",
		},
		[]string{"provider"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolDuration records in-process tool execution time.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unigen_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool_name"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unigen_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderRetriesTotal,
		ProviderTokensTotal,
		StreamEventsTotal,
		ListenerFailuresTotal,
		ApprovalTransitionsTotal,
		ApprovalsPending,
		CacheLookupsTotal,
		CacheInvalidationsTotal,
		ToolExecutionsTotal,
		ToolDuration,
		RateLimitRejectedTotal,
	)
}

// RecordProviderCall records the outcome of one dispatched operation.
// status is "success" or the error type.
func RecordProviderCall(provider, operation, status string, seconds float64) {
	ProviderRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	ProviderLatency.WithLabelValues(provider, operation).Observe(seconds)
}

// RecordTokens adds token usage for a generation.
func RecordTokens(provider, model string, input, output int) {
	if input > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "output").Add(float64(output))
	}
}
