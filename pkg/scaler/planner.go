package scaler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
)

// Planner distributes an approved scale-up or scale-down count across a
// tier's scalable groups: cap candidates to budget, re-check headroom
// per group, issue the call, collect failures without aborting siblings.
type Planner struct {
	Agents collaborator.AgentManagement
}

// NewPlanner wires a Planner against the given AgentManagement.
func NewPlanner(agents collaborator.AgentManagement) *Planner {
	return &Planner{Agents: agents}
}

// DistributeScaleUp iterates groups in the given (Active-before-PhasedOut)
// order, issuing agentManagement.scaleUp up to each group's
// max-minus-desired headroom, until approved is exhausted or groups run
// out. It returns the total actually issued; per-group errors are
// collected but do not stop evaluation of the remaining groups.
func (p *Planner) DistributeScaleUp(ctx context.Context, groups []domain.InstanceGroup, approved int) (issued int, errs []error) {
	remaining := approved
	for _, g := range groups {
		if remaining <= 0 {
			break
		}
		headroom := g.Max - g.Desired
		if headroom <= 0 {
			continue
		}
		count := headroom
		if remaining < count {
			count = remaining
		}
		if err := p.Agents.ScaleUp(ctx, g.ID, count); err != nil {
			errs = append(errs, fmt.Errorf("scale up group %s by %d: %w", g.ID, count, err))
			continue
		}
		issued += count
		remaining -= count
	}
	return issued, errs
}

// DistributeScaleDown groups idle instances by instanceGroupId and iterates
// groups in reverse preference order (PhasedOut first), marking up to each
// group's (current - min - alreadyRemovable) floor. It returns the total
// number of instances actually marked.
func (p *Planner) DistributeScaleDown(ctx context.Context, groups []domain.InstanceGroup, idle []domain.Instance, alreadyRemovable map[string]int, approved int, now time.Time) (marked int, errs []error) {
	idleByGroup := make(map[string][]domain.Instance)
	for _, inst := range idle {
		idleByGroup[inst.InstanceGroupID] = append(idleByGroup[inst.InstanceGroupID], inst)
	}

	reversed := make([]domain.InstanceGroup, len(groups))
	for i, g := range groups {
		reversed[len(groups)-1-i] = g
	}

	remaining := approved
	markedAt := strconv.FormatInt(now.UnixMilli(), 10)
	attrs := map[string]string{
		domain.AttrRemovable:         markedAt,
		domain.AttrSystemNoPlacement: "true",
	}

	for _, g := range reversed {
		if remaining <= 0 {
			break
		}
		groupIdle := idleByGroup[g.ID]
		if len(groupIdle) == 0 {
			continue
		}
		floor := g.Current - g.Min - alreadyRemovable[g.ID]
		if floor <= 0 {
			continue
		}
		groupCap := floor
		if len(groupIdle) < groupCap {
			groupCap = len(groupIdle)
		}
		if remaining < groupCap {
			groupCap = remaining
		}
		for i := 0; i < groupCap; i++ {
			inst := groupIdle[i]
			if err := p.Agents.UpdateInstanceAttributes(ctx, inst.ID, attrs); err != nil {
				errs = append(errs, fmt.Errorf("mark instance %s removable: %w", inst.ID, err))
				continue
			}
			marked++
			remaining--
		}
	}
	return marked, errs
}
