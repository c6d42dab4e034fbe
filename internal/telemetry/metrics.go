package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики оркестрации. Экспортируются на /metrics
// каждым бинарём через promhttp.
var (
	// StageCalls — счётчик вызовов этапных сервисов.
	// result: approved, rejected, needs_info, unreachable, timeout, invalid_response.
	StageCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loanflow_stage_calls_total",
		Help: "Stage service calls by stage and result",
	}, []string{"stage", "result"})

	// StageCallDuration — длительность вызова этапа (включая retry).
	StageCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loanflow_stage_call_seconds",
		Help:    "Stage call duration in seconds, including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// Transitions — счётчик сохранённых переходов состояния заявок.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loanflow_transitions_total",
		Help: "Persisted application state transitions",
	}, []string{"from", "to"})

	// VersionConflicts — переходы, молча брошенные из-за гонки версий.
	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loanflow_version_conflicts_total",
		Help: "Transitions dropped due to optimistic version conflicts",
	})

	// ActiveApplications — заявки, удерживаемые оркестратором в данный момент.
	ActiveApplications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loanflow_active_applications",
		Help: "Applications currently locked by orchestrator workers",
	})

	// RetriesScheduled — восстановления FAILED-заявок планировщиком.
	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loanflow_scheduled_retries_total",
		Help: "FAILED applications re-queued by the retry sweep",
	})
)
