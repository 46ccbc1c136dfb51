package scaler

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/metrics"
	"github.com/fleetscale/agent-autoscaler/pkg/snapshot"
)

// TierResult is one tier's outcome for one iteration: the raw demand
// numbers alongside what was actually approved and issued, enough for a
// caller to push gauges, log a decision, and emit an audit event without
// recomputing anything.
type TierResult struct {
	Tier domain.Tier

	IdleCount        int
	FailedCount      int
	SLOViolatorCount int

	ProposedUp int
	ApprovedUp int
	IssuedUp   int

	Surplus      int
	ApprovedDown int
	MarkedDown   int

	ContributingTaskIDs []string
	State               TierState
	Errors              []error
}

// Runner ties the evaluator, rate limiter and planner together for one
// tier: compute idle instances and demand, gate by cooldown and tokens,
// issue scale-up, and only when no scale-up fired this tick consider
// scale-down. The gating runs once per tier rather than once per node.
type Runner struct {
	Agents  AgentLimitsLister
	Planner *Planner
	Logger  *zap.SugaredLogger
}

// AgentLimitsLister is the subset of collaborator.AgentManagement the
// evaluator needs to resolve a tier's per-instance resource unit.
type AgentLimitsLister interface {
	ResourceLimits(ctx context.Context, instanceType string) (domain.ResourceLimits, error)
}

// NewRunner wires a Runner.
func NewRunner(agents AgentLimitsLister, planner *Planner, logger *zap.SugaredLogger) *Runner {
	return &Runner{Agents: agents, Planner: planner, Logger: logger}
}

// EvaluateTier runs one tier's full decision for one iteration and returns
// the TierState it should be replaced with alongside the outcome.
func (r *Runner) EvaluateTier(ctx context.Context, snap *snapshot.Snapshot, tierCfg TierConfig, state TierState, ttl *TTLSet) (TierResult, error) {
	unit, err := r.Agents.ResourceLimits(ctx, tierCfg.PrimaryInstanceType)
	if err != nil {
		return TierResult{}, err
	}

	groups := scalableGroups(snap, tierCfg)
	idle := idleInstances(snap, tierCfg, groups)

	result := TierResult{Tier: tierCfg.Tier, IdleCount: len(idle), State: state}

	rawFailed := snap.FailuresByTier(tierCfg.Tier, ignoreNeverTrigger)
	result.FailedCount = len(rawFailed)
	result.SLOViolatorCount = len(sloViolatorTaskIDs(snap, tierCfg, unit))

	if state.ScaleUpCooldown.Elapsed(snap.Now) {
		demand := computeScaleUpDemand(snap, tierCfg, unit, len(idle), ttl)
		result.ProposedUp = demand.Proposed
		result.ContributingTaskIDs = demand.ContributingTaskIDs

		if demand.Proposed > 0 {
			granted, nextBucket, ok := state.ScaleUpBucket.TryTake(1, clampMax(demand.Proposed, state.ScaleUpBucket.Capacity), snap.Now)
			state.ScaleUpBucket = nextBucket
			if ok {
				result.ApprovedUp = granted
				issued, errs := r.Planner.DistributeScaleUp(ctx, groups, granted)
				result.IssuedUp = issued
				result.Errors = append(result.Errors, errs...)
				if issued >= 1 && demand.UsedCooldown {
					state.ScaleUpCooldown = state.ScaleUpCooldown.Fired(snap.Now)
				}
			} else {
				metrics.RecordTokenBucketExhausted(string(tierCfg.Tier), "up")
			}
		}
	}

	if result.IssuedUp == 0 && state.ScaleDownCooldown.Elapsed(snap.Now) {
		surplus := len(idle) - tierCfg.MaxIdle
		if surplus > 0 {
			result.Surplus = surplus
			granted, nextBucket, ok := state.ScaleDownBucket.TryTake(1, clampMax(surplus, state.ScaleDownBucket.Capacity), snap.Now)
			state.ScaleDownBucket = nextBucket
			if ok {
				result.ApprovedDown = granted
				alreadyRemovable := countAlreadyRemovable(snap, groups)
				marked, errs := r.Planner.DistributeScaleDown(ctx, groups, idle, alreadyRemovable, granted, snap.Now)
				result.MarkedDown = marked
				result.Errors = append(result.Errors, errs...)
				if marked >= 1 {
					state.ScaleDownCooldown = state.ScaleDownCooldown.Fired(snap.Now)
				}
			} else {
				metrics.RecordTokenBucketExhausted(string(tierCfg.Tier), "down")
			}
		}
	}

	state.Gauges = Gauges{
		IdleCount:        result.IdleCount,
		FailedCount:      result.FailedCount,
		SLOViolatorCount: result.SLOViolatorCount,
		ProposedUp:       result.ProposedUp,
		ExecutedUp:       result.IssuedUp,
		ProposedDown:     result.Surplus,
		ExecutedDown:     result.MarkedDown,
	}
	result.State = state
	return result, nil
}

func clampMax(proposed, capacity int) int {
	if proposed > capacity {
		return capacity
	}
	return proposed
}

func countAlreadyRemovable(snap *snapshot.Snapshot, groups []domain.InstanceGroup) map[string]int {
	out := make(map[string]int, len(groups))
	for _, g := range groups {
		count := 0
		for _, inst := range snap.InstancesByGroup[g.ID] {
			if inst.HasAttr(domain.AttrRemovable) {
				count++
			}
		}
		out[g.ID] = count
	}
	return out
}
