package scaler

import (
	"math"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/snapshot"
)

var ignoreNeverTrigger = map[domain.FailureKind]bool{domain.FailureNeverTriggerAutoscale: true}

var ignoreNeverTriggerAndLaunchGuard = map[domain.FailureKind]bool{
	domain.FailureNeverTriggerAutoscale: true,
	domain.FailureLaunchGuard:           true,
}

var pinningHardConstraints = map[string]bool{
	domain.HardConstraintMachineID:   true,
	domain.HardConstraintMachineType: true,
}

// fitsTierUnit reports whether a task's resource request fits within a
// single tier-unit instance in every dimension. A task that doesn't fit
// is excluded from demand: no added agent could ever place it.
func fitsTierUnit(req, unit domain.ResourceLimits) bool {
	return req.CPU <= unit.CPU && req.MemMB <= unit.MemMB && req.DiskMB <= unit.DiskMB && req.NetMbps <= unit.NetMbps
}

// isScalable reports whether adding agents could plausibly help this
// task's job ever place: no pinning hard constraint, and its resource
// request fits within the tier's unit size.
func isScalable(job domain.Job, unit domain.ResourceLimits) bool {
	for key := range job.HardConstraints {
		if pinningHardConstraints[key] {
			return false
		}
	}
	return fitsTierUnit(job.ContainerResources, unit)
}

// scalableFailureTaskIDs returns the tier's placement-failure task IDs
// that are scalable, ignoring the given failure kinds.
func scalableFailureTaskIDs(snap *snapshot.Snapshot, tierCfg TierConfig, unit domain.ResourceLimits, ignoring map[domain.FailureKind]bool) []string {
	var out []string
	for _, f := range snap.FailuresByTier(tierCfg.Tier, ignoring) {
		task, ok := snap.Tasks[f.TaskID]
		if !ok {
			continue
		}
		job, ok := snap.Jobs[task.JobID]
		if !ok {
			continue
		}
		if !isScalable(job, unit) {
			continue
		}
		out = append(out, f.TaskID)
	}
	return out
}

// sloViolatorTaskIDs returns, among the tier's failed tasks (ignoring only
// NEVER_TRIGGER_AUTOSCALING), those still Accepted after taskSlo has
// elapsed, filtered by scalability.
func sloViolatorTaskIDs(snap *snapshot.Snapshot, tierCfg TierConfig, unit domain.ResourceLimits) []string {
	var out []string
	for _, f := range snap.FailuresByTier(tierCfg.Tier, ignoreNeverTrigger) {
		task, ok := snap.Tasks[f.TaskID]
		if !ok {
			continue
		}
		if task.Status.State != domain.TaskAccepted {
			continue
		}
		if snap.Now.Sub(task.Status.Timestamp) < tierCfg.TaskSLO {
			continue
		}
		job, ok := snap.Jobs[task.JobID]
		if !ok {
			continue
		}
		if !isScalable(job, unit) {
			continue
		}
		out = append(out, f.TaskID)
	}
	return out
}

// scaleUpDemand is the computed shortfall a tier needs to scale up for.
type scaleUpDemand struct {
	Shortfall           int
	DominantCount       int
	Proposed            int
	UsedCooldown        bool
	ContributingTaskIDs []string
}

// computeScaleUpDemand runs Step C's full math: min-idle shortfall,
// placement-failure and SLO-violator task sets (deduplicated against the
// TTL set and inserted into it), and the dominant-resource ceiling across
// the surviving task set.
func computeScaleUpDemand(snap *snapshot.Snapshot, tierCfg TierConfig, unit domain.ResourceLimits, idleCount int, ttl *TTLSet) scaleUpDemand {
	shortfall := tierCfg.MinIdle - idleCount
	if shortfall < 0 {
		shortfall = 0
	}

	failureIDs := scalableFailureTaskIDs(snap, tierCfg, unit, ignoreNeverTriggerAndLaunchGuard)
	sloIDs := sloViolatorTaskIDs(snap, tierCfg, unit)

	seen := make(map[string]bool, len(failureIDs)+len(sloIDs))
	var survivors []string
	for _, id := range append(append([]string{}, failureIDs...), sloIDs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if ttl.Contains(id, snap.Now) {
			continue
		}
		survivors = append(survivors, id)
	}
	for _, id := range survivors {
		ttl.Add(id, snap.Now)
	}

	var sumCPU, sumMem, sumDisk, sumNet float64
	for _, id := range survivors {
		task, ok := snap.Tasks[id]
		if !ok {
			continue
		}
		job, ok := snap.Jobs[task.JobID]
		if !ok {
			continue
		}
		sumCPU += job.ContainerResources.CPU
		sumMem += job.ContainerResources.MemMB
		sumDisk += job.ContainerResources.DiskMB
		sumNet += job.ContainerResources.NetMbps
	}

	dominantCount := 0
	if unit.CPU > 0 {
		dominantCount = maxInt(dominantCount, ceilDiv(sumCPU, unit.CPU))
	}
	if unit.MemMB > 0 {
		dominantCount = maxInt(dominantCount, ceilDiv(sumMem, unit.MemMB))
	}
	if unit.DiskMB > 0 {
		dominantCount = maxInt(dominantCount, ceilDiv(sumDisk, unit.DiskMB))
	}
	if unit.NetMbps > 0 {
		dominantCount = maxInt(dominantCount, ceilDiv(sumNet, unit.NetMbps))
	}

	proposed := shortfall + dominantCount
	return scaleUpDemand{
		Shortfall:           shortfall,
		DominantCount:       dominantCount,
		Proposed:            proposed,
		UsedCooldown:        proposed > 0,
		ContributingTaskIDs: survivors,
	}
}

func ceilDiv(sum, unit float64) int {
	if sum <= 0 {
		return 0
	}
	return int(math.Ceil(sum / unit))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
