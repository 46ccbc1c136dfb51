// Package snapshot builds the single immutable view of cluster state that
// one loop iteration reasons from. The teacher's ScaleDownManager takes the
// same approach with IdentifyUnderutilizedNodes: read everything once under
// lock, deep-copy it out, and let every downstream decision work from that
// copy rather than re-querying live state mid-iteration.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
)

// Snapshot is the read-only view every tier evaluation works from. Nothing
// in this package or pkg/scaler mutates a Snapshot after Build returns it.
type Snapshot struct {
	Now time.Time

	Jobs  map[string]domain.Job
	Tasks map[string]domain.Task

	// ActiveGroups holds every considered instance group (LifecycleState
	// Active or PhasedOut), Active groups first, preserving the listing
	// order within each lifecycle state.
	ActiveGroups []domain.InstanceGroup

	InstancesByGroup map[string][]domain.Instance

	// TasksOnAgent counts tasks currently assigned to each instance.
	TasksOnAgent map[string]int

	failures map[domain.FailureKind][]domain.PlacementFailure
}

// Builder assembles a Snapshot from the three external collaborators.
type Builder struct {
	Agents    collaborator.AgentManagement
	Scheduler collaborator.Scheduler
	Jobs      collaborator.JobOperations
	Clock     func() time.Time
}

// NewBuilder wires a Builder against the given collaborators, using
// time.Now as the clock.
func NewBuilder(agents collaborator.AgentManagement, sched collaborator.Scheduler, jobs collaborator.JobOperations) *Builder {
	return &Builder{Agents: agents, Scheduler: sched, Jobs: jobs, Clock: time.Now}
}

// New assembles a Snapshot directly from already-known data, without
// querying any collaborator (Build assembles its own Snapshot and does
// not call New); tests use it to
// construct a Snapshot without fake collaborators when the scenario
// needs more control than FakeAgentManagement's grouping conventions
// give it.
func New(now time.Time, jobs map[string]domain.Job, tasks map[string]domain.Task, activeGroups []domain.InstanceGroup, instancesByGroup map[string][]domain.Instance, tasksOnAgent map[string]int, failures map[domain.FailureKind][]domain.PlacementFailure) *Snapshot {
	return &Snapshot{
		Now:              now,
		Jobs:             jobs,
		Tasks:            tasks,
		ActiveGroups:     activeGroups,
		InstancesByGroup: instancesByGroup,
		TasksOnAgent:     tasksOnAgent,
		failures:         failures,
	}
}

// Build reads jobs, tasks, instance groups, instances and last placement
// failures into one immutable view. Any collaborator error aborts the
// build entirely — an iteration with a partial snapshot is worse than no
// iteration at all. Transient errors that are logged and allow the
// iteration to continue apply to a single tier's evaluation, not to
// snapshot assembly.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	now := b.Clock()

	groups, err := b.Agents.ListInstanceGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instance groups: %w", err)
	}

	jobsList, err := b.Jobs.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	tasksList, err := b.Jobs.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	failures, err := b.Scheduler.LastTaskPlacementFailures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list placement failures: %w", err)
	}

	s := &Snapshot{
		Now:              now,
		Jobs:             make(map[string]domain.Job, len(jobsList)),
		Tasks:            make(map[string]domain.Task, len(tasksList)),
		InstancesByGroup: make(map[string][]domain.Instance),
		TasksOnAgent:     make(map[string]int),
		failures:         failures,
	}

	for _, j := range jobsList {
		s.Jobs[j.ID] = j
	}
	for _, t := range tasksList {
		s.Tasks[t.ID] = t
		if t.AssignedInstanceID != "" {
			s.TasksOnAgent[t.AssignedInstanceID]++
		}
	}

	var active, phasedOut []domain.InstanceGroup
	for _, g := range groups {
		switch g.LifecycleState {
		case domain.GroupActive:
			active = append(active, g)
		case domain.GroupPhasedOut:
			phasedOut = append(phasedOut, g)
		default:
			continue
		}
		instances, err := b.Agents.ListInstances(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("list instances for group %s: %w", g.ID, err)
		}
		s.InstancesByGroup[g.ID] = instances
	}
	s.ActiveGroups = append(active, phasedOut...)

	return s, nil
}

// FailuresByTier returns the tier's placement failures, excluding any
// failure kind present in ignoring.
func (s *Snapshot) FailuresByTier(tier domain.Tier, ignoring map[domain.FailureKind]bool) []domain.PlacementFailure {
	var out []domain.PlacementFailure
	for kind, failures := range s.failures {
		if ignoring[kind] {
			continue
		}
		for _, f := range failures {
			if f.Tier != tier {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}
