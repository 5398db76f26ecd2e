package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the runtime's Prometheus metrics: model-call latency,
// tool execution patterns, agent-loop iteration counts, and job outcomes.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures model-call latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// AgentIterations counts completed agent-loop iterations.
	AgentIterations prometheus.Counter

	// AgentRuns counts agent runs by outcome.
	// Labels: outcome (completed|cancelled|error)
	AgentRuns *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// JobsCounter counts background jobs by terminal status.
	// Labels: status (completed|failed|cancelled)
	JobsCounter *prometheus.CounterVec

	// ActiveJobs is a gauge of currently running jobs.
	ActiveJobs prometheus.Gauge

	// HTTPRequestDuration measures HTTP request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on reg, used by tests to avoid
// duplicate registration on the default registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_llm_request_duration_seconds",
			Help:    "Model-call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_llm_requests_total",
			Help: "Model calls by model and status.",
		}, []string{"model", "status"}),
		AgentIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_agent_iterations_total",
			Help: "Completed agent-loop iterations.",
		}),
		AgentRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_agent_runs_total",
			Help: "Agent runs by outcome.",
		}, []string{"outcome"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_tool_executions_total",
			Help: "Tool invocations by tool and status.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_tool_execution_duration_seconds",
			Help:    "Tool execution time in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
		JobsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_jobs_total",
			Help: "Background jobs by terminal status.",
		}, []string{"status"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentrt_jobs_active",
			Help: "Currently running background jobs.",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code"}),
	}
}

// ToolObserved records one tool execution's outcome and duration. Nil-safe
// so callers can carry a nil *Metrics when metrics are disabled.
func (m *Metrics) ToolObserved(toolName string, success bool, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(seconds)
}

// IterationObserved records one completed agent-loop iteration.
func (m *Metrics) IterationObserved() {
	if m == nil {
		return
	}
	m.AgentIterations.Inc()
}

// RunObserved records an agent run's outcome.
func (m *Metrics) RunObserved(outcome string) {
	if m == nil {
		return
	}
	m.AgentRuns.WithLabelValues(outcome).Inc()
}

// ActiveJobsInc bumps the running-jobs gauge.
func (m *Metrics) ActiveJobsInc() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

// ActiveJobsDec drops the running-jobs gauge.
func (m *Metrics) ActiveJobsDec() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}

// JobObserved records a job's terminal status.
func (m *Metrics) JobObserved(status string) {
	if m == nil {
		return
	}
	m.JobsCounter.WithLabelValues(status).Inc()
}
