package scaler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/ratelimit"
	"github.com/fleetscale/agent-autoscaler/pkg/snapshot"
)

func newRunner(t *testing.T, agents *collaborator.FakeAgentManagement) (*Runner, *Planner) {
	planner := NewPlanner(agents)
	return NewRunner(agents, planner, zaptest.NewLogger(t).Sugar()), planner
}

func flexTierCfg() TierConfig {
	return TierConfig{
		Tier:                    "Flex",
		PrimaryInstanceType:     "m5.large",
		MinIdle:                 3,
		MaxIdle:                 10,
		ScaleUpCooldown:         time.Minute,
		ScaleDownCooldown:       time.Minute,
		IdleInstanceGracePeriod: 0,
		TaskSLO:                 5 * time.Minute,
	}
}

func instanceStarted(id, groupID string, launch time.Time) domain.Instance {
	return domain.Instance{ID: id, InstanceGroupID: groupID, LifecycleState: domain.InstanceStarted, LaunchTimestamp: launch}
}

// Scenario 1: min-idle top-up.
func TestRunner_MinIdleTopUp(t *testing.T) {
	now := time.Unix(100000, 0)
	agents := collaborator.NewFakeAgentManagement()
	agents.Groups["g1"] = domain.InstanceGroup{ID: "g1", Tier: "Flex", InstanceType: "m5.large", LifecycleState: domain.GroupActive, Max: 50, Desired: 20, Current: 20, Min: 0}
	agents.Limits["m5.large"] = domain.ResourceLimits{CPU: 16, MemMB: 32000, DiskMB: 100000, NetMbps: 10000}
	agents.InstancesByGrp["g1"] = []domain.Instance{instanceStarted("i1", "g1", now.Add(-time.Hour))}

	runner, _ := newRunner(t, agents)
	snap := &snapshot.Snapshot{Now: now, Jobs: map[string]domain.Job{}, Tasks: map[string]domain.Task{}, InstancesByGroup: agents.InstancesByGrp, TasksOnAgent: map[string]int{}, ActiveGroups: []domain.InstanceGroup{agents.Groups["g1"]}}

	tierCfg := flexTierCfg()
	state := NewTierState(tierCfg, DefaultGlobalConfig(), now)
	ttl := NewTTLSet(10 * time.Minute)

	result, err := runner.EvaluateTier(context.Background(), snap, tierCfg, state, ttl)
	require.NoError(t, err)

	assert.Equal(t, 1, result.IdleCount)
	assert.Equal(t, 2, result.ProposedUp)
	assert.Equal(t, 2, result.IssuedUp)
	require.Len(t, agents.ScaleUpCalls, 1)
	assert.Equal(t, "g1", agents.ScaleUpCalls[0].GroupID)
	assert.Equal(t, 2, agents.ScaleUpCalls[0].Delta)
	assert.True(t, result.State.ScaleUpCooldown.LastFireAt.Equal(now))
}

// Scenario 2: dominant-resource ceiling.
func TestRunner_DominantResourceCeiling(t *testing.T) {
	now := time.Unix(200000, 0)
	agents := collaborator.NewFakeAgentManagement()
	agents.Groups["g1"] = domain.InstanceGroup{ID: "g1", Tier: "Flex", InstanceType: "m5.large", LifecycleState: domain.GroupActive, Max: 50, Desired: 20, Current: 20}
	agents.Limits["m5.large"] = domain.ResourceLimits{CPU: 16, MemMB: 32000, DiskMB: 100000, NetMbps: 10000}

	// Failed scalable tasks summing {cpu=40, mem=30GB, disk=10GB, net=2Gb}
	// against a {cpu=16, mem=32GB, disk=100GB, net=10Gb} tier unit: CPU is
	// the tightest dimension, ceil(40/16)=3. Each individual task still
	// has to fit within the tier unit to count as scalable at all.
	jobs := map[string]domain.Job{
		"j1": {ID: "j1", ContainerResources: domain.ResourceLimits{CPU: 16, MemMB: 10000, DiskMB: 3334, NetMbps: 667}},
		"j2": {ID: "j2", ContainerResources: domain.ResourceLimits{CPU: 16, MemMB: 10000, DiskMB: 3333, NetMbps: 667}},
		"j3": {ID: "j3", ContainerResources: domain.ResourceLimits{CPU: 8, MemMB: 10000, DiskMB: 3333, NetMbps: 666}},
	}
	tasks := map[string]domain.Task{
		"j1-task": {ID: "j1-task", JobID: "j1", Status: domain.TaskStatus{State: domain.TaskAccepted, Timestamp: now}},
		"j2-task": {ID: "j2-task", JobID: "j2", Status: domain.TaskStatus{State: domain.TaskAccepted, Timestamp: now}},
		"j3-task": {ID: "j3-task", JobID: "j3", Status: domain.TaskStatus{State: domain.TaskAccepted, Timestamp: now}},
	}
	failures := map[domain.FailureKind][]domain.PlacementFailure{
		domain.FailureAllAgentsFull: {
			{TaskID: "j1-task", Tier: "Flex", FailureKind: domain.FailureAllAgentsFull},
			{TaskID: "j2-task", Tier: "Flex", FailureKind: domain.FailureAllAgentsFull},
			{TaskID: "j3-task", Tier: "Flex", FailureKind: domain.FailureAllAgentsFull},
		},
	}

	runner, _ := newRunner(t, agents)
	snap := snapshot.New(now, jobs, tasks, []domain.InstanceGroup{agents.Groups["g1"]}, agents.InstancesByGrp, map[string]int{}, failures)

	tierCfg := flexTierCfg()
	tierCfg.MinIdle = 0
	state := NewTierState(tierCfg, DefaultGlobalConfig(), now)
	ttl := NewTTLSet(10 * time.Minute)

	result, err := runner.EvaluateTier(context.Background(), snap, tierCfg, state, ttl)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ProposedUp)
}

// Scenario 3: LaunchGuard exclusion from placement-failure demand.
func TestRunner_LaunchGuardExcludedFromDemand(t *testing.T) {
	now := time.Unix(300000, 0)
	agents := collaborator.NewFakeAgentManagement()
	agents.Groups["g1"] = domain.InstanceGroup{ID: "g1", Tier: "Critical", InstanceType: "m5.large", LifecycleState: domain.GroupActive, Max: 50, Desired: 20, Current: 20}
	agents.Limits["m5.large"] = domain.ResourceLimits{CPU: 16, MemMB: 32000, DiskMB: 100000, NetMbps: 10000}

	job := domain.Job{ID: "j1", ContainerResources: domain.ResourceLimits{CPU: 16, MemMB: 1, DiskMB: 1, NetMbps: 1}}
	jobs := map[string]domain.Job{"j1": job}
	tasks := map[string]domain.Task{
		"t1": {ID: "t1", JobID: "j1", Status: domain.TaskStatus{State: domain.TaskAccepted, Timestamp: now}},
		"t2": {ID: "t2", JobID: "j1", Status: domain.TaskStatus{State: domain.TaskAccepted, Timestamp: now}},
	}
	failures := map[domain.FailureKind][]domain.PlacementFailure{
		domain.FailureAllAgentsFull: {{TaskID: "t1", Tier: "Critical", FailureKind: domain.FailureAllAgentsFull}},
		domain.FailureLaunchGuard:   {{TaskID: "t2", Tier: "Critical", FailureKind: domain.FailureLaunchGuard}},
	}

	runner, _ := newRunner(t, agents)
	snap := snapshot.New(now, jobs, tasks, []domain.InstanceGroup{agents.Groups["g1"]}, agents.InstancesByGrp, map[string]int{}, failures)

	tierCfg := flexTierCfg()
	tierCfg.Tier = "Critical"
	tierCfg.MinIdle = 0
	tierCfg.TaskSLO = time.Hour
	state := NewTierState(tierCfg, DefaultGlobalConfig(), now)
	ttl := NewTTLSet(10 * time.Minute)

	result, err := runner.EvaluateTier(context.Background(), snap, tierCfg, state, ttl)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProposedUp)
}

// Scenario 4: scale-down suppressed when scale-up fires this tick.
func TestRunner_ScaleDownSuppressedDuringScaleUp(t *testing.T) {
	now := time.Unix(400000, 0)
	agents := collaborator.NewFakeAgentManagement()
	agents.Groups["g1"] = domain.InstanceGroup{ID: "g1", Tier: "Flex", InstanceType: "m5.large", LifecycleState: domain.GroupActive, Max: 50, Desired: 5, Current: 5}
	agents.Limits["m5.large"] = domain.ResourceLimits{CPU: 16, MemMB: 32000, DiskMB: 100000, NetMbps: 10000}
	var instances []domain.Instance
	for i := 0; i < 5; i++ {
		instances = append(instances, instanceStarted(idOf(i), "g1", now.Add(-time.Hour)))
	}
	agents.InstancesByGrp["g1"] = instances

	runner, _ := newRunner(t, agents)
	snap := &snapshot.Snapshot{Now: now, Jobs: map[string]domain.Job{}, Tasks: map[string]domain.Task{}, InstancesByGroup: agents.InstancesByGrp, TasksOnAgent: map[string]int{}, ActiveGroups: []domain.InstanceGroup{agents.Groups["g1"]}}

	tierCfg := flexTierCfg()
	tierCfg.MinIdle = 8
	tierCfg.MaxIdle = 3
	state := NewTierState(tierCfg, DefaultGlobalConfig(), now)
	ttl := NewTTLSet(10 * time.Minute)

	result, err := runner.EvaluateTier(context.Background(), snap, tierCfg, state, ttl)
	require.NoError(t, err)
	assert.Greater(t, result.IssuedUp, 0)
	assert.Equal(t, 0, result.MarkedDown)
	assert.Empty(t, agents.AttrUpdateCalls)
}

// Scenario 6: PhasedOut group drains before Active.
func TestRunner_PhasedOutDrainsFirst(t *testing.T) {
	now := time.Unix(500000, 0)
	agents := collaborator.NewFakeAgentManagement()
	agents.Groups["active-1"] = domain.InstanceGroup{ID: "active-1", Tier: "Flex", InstanceType: "m5.large", LifecycleState: domain.GroupActive, Max: 50, Desired: 10, Current: 10, Min: 0}
	agents.Groups["phaseout-1"] = domain.InstanceGroup{ID: "phaseout-1", Tier: "Flex", InstanceType: "m5.large", LifecycleState: domain.GroupPhasedOut, Max: 50, Desired: 10, Current: 10, Min: 0}

	var activeInstances, phaseOutInstances []domain.Instance
	for i := 0; i < 10; i++ {
		activeInstances = append(activeInstances, instanceStarted("active-"+idOf(i), "active-1", now.Add(-time.Hour)))
		phaseOutInstances = append(phaseOutInstances, instanceStarted("phaseout-"+idOf(i), "phaseout-1", now.Add(-time.Hour)))
	}
	agents.InstancesByGrp["active-1"] = activeInstances
	agents.InstancesByGrp["phaseout-1"] = phaseOutInstances
	agents.Limits["m5.large"] = domain.ResourceLimits{CPU: 16, MemMB: 32000, DiskMB: 100000, NetMbps: 10000}

	runner, _ := newRunner(t, agents)
	snap := &snapshot.Snapshot{
		Now:              now,
		Jobs:             map[string]domain.Job{},
		Tasks:            map[string]domain.Task{},
		InstancesByGroup: agents.InstancesByGrp,
		TasksOnAgent:     map[string]int{},
		ActiveGroups:     []domain.InstanceGroup{agents.Groups["active-1"], agents.Groups["phaseout-1"]},
	}

	tierCfg := flexTierCfg()
	tierCfg.MinIdle = 0
	tierCfg.MaxIdle = 5
	state := NewTierState(tierCfg, DefaultGlobalConfig(), now)
	state.ScaleDownBucket = ratelimit.NewTokenBucketWithTokens(50, 2, 3, now)
	ttl := NewTTLSet(10 * time.Minute)

	result, err := runner.EvaluateTier(context.Background(), snap, tierCfg, state, ttl)
	require.NoError(t, err)
	assert.Equal(t, 3, result.MarkedDown)
	for _, call := range agents.AttrUpdateCalls {
		assert.Contains(t, call.InstanceID, "phaseout-")
	}
}

func idOf(i int) string {
	return string(rune('a' + i))
}
