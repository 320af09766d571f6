package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskagent"

var (
	// ─── Agent cycle ─────────────────────────────────────────────────────────────

	AgentCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "cycles_total",
		Help:      "Agent cycles run, labelled by result (ok, aborted).",
	}, []string{"result"})

	AgentCycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one agent cycle.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})

	AgentTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "tasks_total",
		Help:      "Per-task outcomes, labelled by stage and outcome.",
	}, []string{"stage", "outcome"})

	AgentLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "leader",
		Help:      "1 when this instance holds agent leadership.",
	})

	// ─── Remote request management ───────────────────────────────────────────────

	RemoteCallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rms",
		Name:      "call_duration_seconds",
		Help:      "Latency of calls to the request management service.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"op", "result"})

	SubmitRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rms",
		Name:      "rate_limited_total",
		Help:      "Submissions deferred by the rate limiter.",
	}, []string{"transformation_type"})

	// ─── Reconciliation ──────────────────────────────────────────────────────────

	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "total",
		Help:      "Reconciliations, labelled by terminal status and outcome.",
	}, []string{"status", "outcome"})

	ReconcileStepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "step_failures_total",
		Help:      "Reconciliation steps that failed after retries.",
	}, []string{"step"})

	// ─── Log sink ────────────────────────────────────────────────────────────────

	LogSinkRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "logsink",
		Name:      "records_total",
		Help:      "Logging records consumed, labelled by result (stored, dropped, failed).",
	}, []string{"result"})
)
