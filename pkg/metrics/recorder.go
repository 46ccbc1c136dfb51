package metrics

import "time"

// RecordTierGauges pushes one tier's last-observed counts after an
// evaluation. The caller hands over the numbers it already computed
// rather than the metric reaching back into the scaler to read them.
func RecordTierGauges(tier string, idle, failed, sloViolators, tasksForScaleUp, proposedUp, issuedUp, surplus, markedDown int) {
	tier, _ = SanitizeLabel(tier)
	TotalIdleInstances.WithLabelValues(tier).Set(float64(idle))
	TotalFailedTasks.WithLabelValues(tier).Set(float64(failed))
	TotalTasksPastSLO.WithLabelValues(tier).Set(float64(sloViolators))
	TotalTasksForScaleUp.WithLabelValues(tier).Set(float64(tasksForScaleUp))
	TotalAgentsToScaleUp.WithLabelValues(tier).Set(float64(proposedUp))
	TotalAgentsBeingScaledUp.WithLabelValues(tier).Set(float64(issuedUp))
	TotalAgentsToScaleDown.WithLabelValues(tier).Set(float64(surplus))
	TotalAgentsBeingScaledDown.WithLabelValues(tier).Set(float64(markedDown))
}

// RecordIterationDuration records the wall-clock time of one full iteration.
func RecordIterationDuration(d time.Duration) {
	IterationDuration.Observe(d.Seconds())
}

// RecordIterationError records an iteration that failed before any tier
// was evaluated (snapshot build failure).
func RecordIterationError(errorType string) {
	IterationErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordIterationTimeout records an iteration abandoned past its deadline.
func RecordIterationTimeout() {
	IterationTimeoutsTotal.Inc()
}

// RecordTierSkipped records a tier skipped for the iteration due to a
// resource-limits lookup failure.
func RecordTierSkipped(tier string) {
	tier, _ = SanitizeLabel(tier)
	TierSkippedTotal.WithLabelValues(tier).Inc()
}

// RecordScaleUpCooldownBlocked records a scale-up evaluation gated by an
// unexpired cooldown.
func RecordScaleUpCooldownBlocked(tier string) {
	tier, _ = SanitizeLabel(tier)
	ScaleUpCooldownBlockedTotal.WithLabelValues(tier).Inc()
}

// RecordScaleDownCooldownBlocked records a scale-down evaluation gated by
// an unexpired cooldown or a same-tick scale-up.
func RecordScaleDownCooldownBlocked(tier string) {
	tier, _ = SanitizeLabel(tier)
	ScaleDownCooldownBlockedTotal.WithLabelValues(tier).Inc()
}

// RecordTokenBucketExhausted records a proposed action that found no
// available tokens. direction is "up" or "down".
func RecordTokenBucketExhausted(tier, direction string) {
	tier, _ = SanitizeLabel(tier)
	TokenBucketExhaustedTotal.WithLabelValues(tier, direction).Inc()
}

// RecordReaperGuardReset records one instance whose REMOVABLE marking was
// cleared by the reaper guard.
func RecordReaperGuardReset(tier string) {
	tier, _ = SanitizeLabel(tier)
	ReaperGuardResetTotal.WithLabelValues(tier).Inc()
}

// RecordCollaboratorError records an error returned by one of the three
// external collaborators.
func RecordCollaboratorError(collaborator, operation string) {
	collaborator, _ = SanitizeLabel(collaborator)
	operation, _ = SanitizeLabel(operation)
	CollaboratorErrorsTotal.WithLabelValues(collaborator, operation).Inc()
}
