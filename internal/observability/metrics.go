package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	toolInvocationTotal    *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration prometheus.Histogram
	agentStepsTaken  prometheus.Histogram

	activeSessions prometheus.Gauge

	registryReloadTotal *prometheus.CounterVec
	registryTools       prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolInvocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gofer_tool_invocations_total",
					Help: "Total tool invocations by tool name and outcome.",
				},
				[]string{"tool", "outcome"},
			),
			toolInvocationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gofer_tool_invocation_duration_seconds",
					Help:    "Tool invocation duration in seconds by tool name.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gofer_agent_runs_total",
					Help: "Total agent runs by terminal status.",
				},
				[]string{"status"},
			),
			agentRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "gofer_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds.",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
				},
			),
			agentStepsTaken: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "gofer_agent_steps_taken",
					Help:    "Tool-call steps taken per agent run.",
					Buckets: prometheus.LinearBuckets(0, 1, 16),
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "gofer_active_sessions",
					Help: "Current persisted session count.",
				},
			),
			registryReloadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gofer_registry_reloads_total",
					Help: "Registry reload attempts by result.",
				},
				[]string{"result"},
			),
			registryTools: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "gofer_registry_tools",
					Help: "Tools in the active registry table.",
				},
			),
		}

		prometheus.MustRegister(
			m.toolInvocationTotal,
			m.toolInvocationDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentStepsTaken,
			m.activeSessions,
			m.registryReloadTotal,
			m.registryTools,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered registers all metrics with the default registry.
// Safe to call from every component constructor.
func EnsureRegistered() {
	getMetrics()
}

// RecordToolInvocation records one tool invocation and its outcome label
// (ok, schema_validation, unknown_tool, process, process_timeout, malformed_output).
func RecordToolInvocation(tool, outcome string, d time.Duration) {
	m := getMetrics()
	m.toolInvocationTotal.WithLabelValues(tool, outcome).Inc()
	m.toolInvocationDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordAgentRun records one agent run terminal status.
func RecordAgentRun(status string, steps int, d time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(status).Inc()
	m.agentRunDuration.Observe(d.Seconds())
	m.agentStepsTaken.Observe(float64(steps))
}

// SetActiveSessions updates the persisted session gauge.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordRegistryReload records a reload attempt and, on success, the table size.
func RecordRegistryReload(ok bool, tools int) {
	m := getMetrics()
	if ok {
		m.registryReloadTotal.WithLabelValues("ok").Inc()
		m.registryTools.Set(float64(tools))
		return
	}
	m.registryReloadTotal.WithLabelValues("error").Inc()
}
