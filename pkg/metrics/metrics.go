package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// Namespace is the metrics namespace for the autoscaler
	Namespace = "fleet_autoscaler"
)

var (
	// TotalIdleInstances tracks the number of idle instances per tier
	TotalIdleInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_idle_instances",
			Help:      "Number of idle instances in a tier",
		},
		[]string{"tier"},
	)

	// TotalFailedTasks tracks the number of failed/unschedulable tasks per tier
	TotalFailedTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_failed_tasks",
			Help:      "Number of failed placement tasks observed for a tier",
		},
		[]string{"tier"},
	)

	// TotalTasksPastSLO tracks the number of Accepted tasks past their SLO deadline
	TotalTasksPastSLO = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_tasks_past_slo",
			Help:      "Number of tasks that have violated their scheduling SLO",
		},
		[]string{"tier"},
	)

	// TotalTasksForScaleUp tracks the number of tasks contributing to scale-up demand
	TotalTasksForScaleUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_tasks_for_scale_up",
			Help:      "Number of distinct tasks counted toward scale-up demand",
		},
		[]string{"tier"},
	)

	// TotalAgentsToScaleUp tracks the proposed scale-up count per tier
	TotalAgentsToScaleUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_agents_to_scale_up",
			Help:      "Number of agents proposed for scale-up in a tier",
		},
		[]string{"tier"},
	)

	// TotalAgentsBeingScaledUp tracks the issued scale-up count per tier
	TotalAgentsBeingScaledUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_agents_being_scaled_up",
			Help:      "Number of agents actually issued for scale-up in a tier",
		},
		[]string{"tier"},
	)

	// TotalAgentsToScaleDown tracks the proposed scale-down count (idle surplus) per tier
	TotalAgentsToScaleDown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_agents_to_scale_down",
			Help:      "Number of agents proposed for scale-down in a tier (idle count above maxIdle)",
		},
		[]string{"tier"},
	)

	// TotalAgentsBeingScaledDown tracks the marked-removable count per tier
	TotalAgentsBeingScaledDown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_agents_being_scaled_down",
			Help:      "Number of agents actually marked REMOVABLE in a tier",
		},
		[]string{"tier"},
	)

	// IterationDuration tracks the wall-clock time of one full evaluation
	IterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Time taken by one autoscaler evaluation iteration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		},
	)

	// IterationErrorsTotal tracks iteration-level errors (snapshot build failures)
	IterationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "iteration_errors_total",
			Help:      "Total number of iterations that failed before per-tier evaluation",
		},
		[]string{"error_type"},
	)

	// IterationTimeoutsTotal tracks iterations abandoned due to the evaluation timeout
	IterationTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "iteration_timeouts_total",
			Help:      "Total number of iterations abandoned after exceeding the evaluation timeout",
		},
	)

	// TierSkippedTotal tracks tiers skipped for a resource-limits lookup failure
	TierSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tier_skipped_total",
			Help:      "Total number of tier evaluations skipped due to a configuration error",
		},
		[]string{"tier"},
	)

	// ScaleUpCooldownBlockedTotal tracks scale-up evaluations gated by cooldown
	ScaleUpCooldownBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_up_cooldown_blocked_total",
			Help:      "Total number of times scale-up evaluation was gated by an unexpired cooldown",
		},
		[]string{"tier"},
	)

	// ScaleDownCooldownBlockedTotal tracks scale-down evaluations gated by cooldown
	ScaleDownCooldownBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_down_cooldown_blocked_total",
			Help:      "Total number of times scale-down evaluation was gated by an unexpired cooldown or an in-progress scale-up",
		},
		[]string{"tier"},
	)

	// TokenBucketExhaustedTotal tracks rate-limit exhaustion per tier/direction
	TokenBucketExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "token_bucket_exhausted_total",
			Help:      "Total number of times a tier's token bucket had insufficient tokens for the proposed action",
		},
		[]string{"tier", "direction"},
	)

	// ReaperGuardResetTotal tracks REMOVABLE markings cleared by the reaper guard
	ReaperGuardResetTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reaper_guard_reset_total",
			Help:      "Total number of REMOVABLE markings cleared by the reaper guard",
		},
		[]string{"tier"},
	)

	// CollaboratorErrorsTotal tracks errors from the external collaborators
	CollaboratorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "collaborator_errors_total",
			Help:      "Total number of errors returned by AgentManagement, Scheduler or JobOperations calls",
		},
		[]string{"collaborator", "operation"},
	)

	// AuditEventsTotal tracks emitted audit events
	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_events_total",
			Help:      "Total number of audit events recorded, by type/category/severity",
		},
		[]string{"event_type", "category", "severity"},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers all metrics with the controller-runtime metrics
// registry. Calls after the first are no-ops.
func RegisterMetrics() {
	registerOnce.Do(registerMetrics)
}

func registerMetrics() {
	metrics.Registry.MustRegister(
		TotalIdleInstances,
		TotalFailedTasks,
		TotalTasksPastSLO,
		TotalTasksForScaleUp,
		TotalAgentsToScaleUp,
		TotalAgentsBeingScaledUp,
		TotalAgentsToScaleDown,
		TotalAgentsBeingScaledDown,
		IterationDuration,
		IterationErrorsTotal,
		IterationTimeoutsTotal,
		TierSkippedTotal,
		ScaleUpCooldownBlockedTotal,
		ScaleDownCooldownBlockedTotal,
		TokenBucketExhaustedTotal,
		ReaperGuardResetTotal,
		CollaboratorErrorsTotal,
		AuditEventsTotal,
	)
}

// ResetMetrics resets every labelled (vector) metric (useful for testing).
// IterationDuration and IterationTimeoutsTotal are unlabelled metrics with
// no Reset method and keep their values.
func ResetMetrics() {
	TotalIdleInstances.Reset()
	TotalFailedTasks.Reset()
	TotalTasksPastSLO.Reset()
	TotalTasksForScaleUp.Reset()
	TotalAgentsToScaleUp.Reset()
	TotalAgentsBeingScaledUp.Reset()
	TotalAgentsToScaleDown.Reset()
	TotalAgentsBeingScaledDown.Reset()
	IterationErrorsTotal.Reset()
	TierSkippedTotal.Reset()
	ScaleUpCooldownBlockedTotal.Reset()
	ScaleDownCooldownBlockedTotal.Reset()
	TokenBucketExhaustedTotal.Reset()
	ReaperGuardResetTotal.Reset()
	CollaboratorErrorsTotal.Reset()
	AuditEventsTotal.Reset()
}
