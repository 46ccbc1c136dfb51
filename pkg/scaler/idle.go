package scaler

import (
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/snapshot"
)

// scalableGroups returns the tier's Active+PhasedOut groups whose
// instanceType matches primaryInstanceType, in the snapshot's existing
// Active-then-PhasedOut order.
func scalableGroups(snap *snapshot.Snapshot, tierCfg TierConfig) []domain.InstanceGroup {
	var out []domain.InstanceGroup
	for _, g := range snap.ActiveGroups {
		if g.Tier != tierCfg.Tier || g.InstanceType != tierCfg.PrimaryInstanceType {
			continue
		}
		out = append(out, g)
	}
	return out
}

// idleInstances selects idle instances: an instance is idle iff its
// group matches the tier/instanceType and carries no NOT_REMOVABLE
// attribute, the instance itself is Started, past its grace period,
// carries neither NOT_REMOVABLE nor REMOVABLE, and has no tasks assigned.
func idleInstances(snap *snapshot.Snapshot, tierCfg TierConfig, groups []domain.InstanceGroup) []domain.Instance {
	var out []domain.Instance
	for _, g := range groups {
		if g.HasAttr(domain.AttrNotRemovable) {
			continue
		}
		for _, inst := range snap.InstancesByGroup[g.ID] {
			if inst.LifecycleState != domain.InstanceStarted {
				continue
			}
			if snap.Now.Sub(inst.LaunchTimestamp) < tierCfg.IdleInstanceGracePeriod {
				continue
			}
			if inst.HasAttr(domain.AttrNotRemovable) || inst.HasAttr(domain.AttrRemovable) {
				continue
			}
			if snap.TasksOnAgent[inst.ID] > 0 {
				continue
			}
			out = append(out, inst)
		}
	}
	return out
}
