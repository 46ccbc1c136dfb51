package collaborator

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
)

// FakeAgentManagement is an in-memory AgentManagement used by tests: it
// records every call it receives so a test can assert on exactly what
// the planner issued.
type FakeAgentManagement struct {
	mu sync.Mutex

	Groups         map[string]domain.InstanceGroup
	InstancesByGrp map[string][]domain.Instance
	Limits         map[string]domain.ResourceLimits
	LimitsErr      map[string]error

	ScaleUpCalls    []ScaleUpCall
	AttrUpdateCalls []AttrUpdateCall
	AttrDeleteCalls []AttrDeleteCall
}

// ScaleUpCall records one AgentManagement.ScaleUp invocation.
type ScaleUpCall struct {
	GroupID string
	Delta   int
}

// AttrUpdateCall records one UpdateInstanceAttributes invocation.
type AttrUpdateCall struct {
	InstanceID string
	Attrs      map[string]string
}

// AttrDeleteCall records one DeleteInstanceAttributes invocation.
type AttrDeleteCall struct {
	InstanceID string
	Keys       []string
}

// NewFakeAgentManagement builds an empty fake; populate Groups,
// InstancesByGrp and Limits directly before use.
func NewFakeAgentManagement() *FakeAgentManagement {
	return &FakeAgentManagement{
		Groups:         make(map[string]domain.InstanceGroup),
		InstancesByGrp: make(map[string][]domain.Instance),
		Limits:         make(map[string]domain.ResourceLimits),
		LimitsErr:      make(map[string]error),
	}
}

func (f *FakeAgentManagement) ListInstanceGroups(ctx context.Context) ([]domain.InstanceGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.InstanceGroup, 0, len(f.Groups))
	for _, g := range f.Groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *FakeAgentManagement) ListInstances(ctx context.Context, groupID string) ([]domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Instance(nil), f.InstancesByGrp[groupID]...), nil
}

func (f *FakeAgentManagement) ResourceLimits(ctx context.Context, instanceType string) (domain.ResourceLimits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.LimitsErr[instanceType]; ok && err != nil {
		return domain.ResourceLimits{}, err
	}
	limits, ok := f.Limits[instanceType]
	if !ok {
		return domain.ResourceLimits{}, fmt.Errorf("unknown instance type %q", instanceType)
	}
	return limits, nil
}

func (f *FakeAgentManagement) ScaleUp(ctx context.Context, groupID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ScaleUpCalls = append(f.ScaleUpCalls, ScaleUpCall{GroupID: groupID, Delta: delta})
	g, ok := f.Groups[groupID]
	if !ok {
		return fmt.Errorf("unknown group %q", groupID)
	}
	g.Desired += delta
	f.Groups[groupID] = g
	return nil
}

func (f *FakeAgentManagement) UpdateInstanceAttributes(ctx context.Context, instanceID string, attrs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AttrUpdateCalls = append(f.AttrUpdateCalls, AttrUpdateCall{InstanceID: instanceID, Attrs: attrs})
	for grpID, instances := range f.InstancesByGrp {
		for i, inst := range instances {
			if inst.ID != instanceID {
				continue
			}
			if inst.Attributes == nil {
				inst.Attributes = map[string]string{}
			}
			for k, v := range attrs {
				inst.Attributes[k] = v
			}
			f.InstancesByGrp[grpID][i] = inst
			return nil
		}
	}
	return fmt.Errorf("unknown instance %q", instanceID)
}

func (f *FakeAgentManagement) DeleteInstanceAttributes(ctx context.Context, instanceID string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AttrDeleteCalls = append(f.AttrDeleteCalls, AttrDeleteCall{InstanceID: instanceID, Keys: keys})
	for grpID, instances := range f.InstancesByGrp {
		for i, inst := range instances {
			if inst.ID != instanceID {
				continue
			}
			for _, k := range keys {
				delete(inst.Attributes, k)
			}
			f.InstancesByGrp[grpID][i] = inst
			return nil
		}
	}
	return fmt.Errorf("unknown instance %q", instanceID)
}

// FakeScheduler is an in-memory Scheduler.
type FakeScheduler struct {
	Failures map[domain.FailureKind][]domain.PlacementFailure
	Err      error
}

func (f *FakeScheduler) LastTaskPlacementFailures(ctx context.Context) (map[domain.FailureKind][]domain.PlacementFailure, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Failures, nil
}

// FakeJobOperations is an in-memory JobOperations.
type FakeJobOperations struct {
	Jobs  []domain.Job
	Tasks []domain.Task
	Err   error
}

func (f *FakeJobOperations) ListJobs(ctx context.Context) ([]domain.Job, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Jobs, nil
}

func (f *FakeJobOperations) ListTasks(ctx context.Context) ([]domain.Task, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Tasks, nil
}
