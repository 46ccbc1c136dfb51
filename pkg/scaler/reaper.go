package scaler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/snapshot"
)

// Reaper implements the removable reaper guard: it runs outside the
// per-tier loop, over every considered group, clearing REMOVABLE
// markings that the external reaper never collected.
type Reaper struct {
	Agents    collaborator.AgentManagement
	Removable time.Duration
}

// NewReaper wires a Reaper against the given AgentManagement and timeout.
func NewReaper(agents collaborator.AgentManagement, removableTimeout time.Duration) *Reaper {
	return &Reaper{Agents: agents, Removable: removableTimeout}
}

// ReapedInstance records one instance the guard cleared.
type ReapedInstance struct {
	InstanceID string
	MarkedAt   time.Time
}

// Run scans every instance in the given groups and, for any with a
// parseable REMOVABLE timestamp at least Removable old, clears both
// REMOVABLE and SYSTEM_NO_PLACEMENT. It returns the instances it reset;
// per-instance errors are collected but do not stop the scan.
func (r *Reaper) Run(ctx context.Context, snap *snapshot.Snapshot, groups []domain.InstanceGroup, now time.Time) (reaped []ReapedInstance, errs []error) {
	for _, g := range groups {
		for _, inst := range snap.InstancesByGroup[g.ID] {
			raw, ok := inst.Attributes[domain.AttrRemovable]
			if !ok {
				continue
			}
			millis, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			markedAt := time.UnixMilli(millis)
			if now.Sub(markedAt) < r.Removable {
				continue
			}
			if err := r.Agents.DeleteInstanceAttributes(ctx, inst.ID, []string{domain.AttrRemovable, domain.AttrSystemNoPlacement}); err != nil {
				errs = append(errs, fmt.Errorf("clear removable marking on %s: %w", inst.ID, err))
				continue
			}
			reaped = append(reaped, ReapedInstance{InstanceID: inst.ID, MarkedAt: markedAt})
		}
	}
	return reaped, errs
}
