package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/scaler"
)

func noElectionOptions() *Options {
	opts := NewDefaultOptions()
	opts.EnableLeaderElection = false
	opts.MetricsAddr = ":0"
	opts.HealthProbeAddr = "127.0.0.1:0"
	return opts
}

func TestNewManager_NoLeaderElection(t *testing.T) {
	opts := noElectionOptions()
	agents := collaborator.NewFakeAgentManagement()

	mgr, err := NewManager(opts, agents, &collaborator.FakeScheduler{}, &collaborator.FakeJobOperations{}, nil)
	require.NoError(t, err)
	require.NotNil(t, mgr)
	assert.NotNil(t, mgr.HealthChecker())
	assert.NotNil(t, mgr.StateStore())
}

func TestManager_StartStop_RunsIterations(t *testing.T) {
	opts := noElectionOptions()
	opts.ActivationDelay = 5 * time.Millisecond
	opts.IterationInterval = 10 * time.Millisecond
	opts.EvaluationTimeout = time.Second

	mgr, err := NewManager(opts, collaborator.NewFakeAgentManagement(), &collaborator.FakeScheduler{}, &collaborator.FakeJobOperations{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, mgr.Start(ctx))

	assert.True(t, mgr.HealthChecker().IsHealthy())
	assert.False(t, mgr.HealthChecker().LastIterationAt().IsZero())
}

func TestManager_Iterate_EvaluatesConfiguredTiers(t *testing.T) {
	opts := noElectionOptions()
	opts.TierOrder = []domain.Tier{"critical"}
	opts.Tiers["critical"] = scaler.TierConfig{
		Tier:                "critical",
		PrimaryInstanceType: "c5.xlarge",
		MinIdle:             1,
		MaxIdle:             5,
	}

	agents := collaborator.NewFakeAgentManagement()
	agents.Limits["c5.xlarge"] = domain.ResourceLimits{CPU: 4, MemMB: 8192, DiskMB: 100000, NetMbps: 1000}
	agents.Groups["g1"] = domain.InstanceGroup{
		ID: "g1", Tier: "critical", InstanceType: "c5.xlarge",
		Min: 0, Current: 1, Desired: 1, Max: 5, LifecycleState: domain.GroupActive,
	}
	agents.InstancesByGrp["g1"] = []domain.Instance{
		{ID: "i1", InstanceGroupID: "g1", LifecycleState: domain.InstanceStarted},
	}

	mgr, err := NewManager(opts, agents, &collaborator.FakeScheduler{}, &collaborator.FakeJobOperations{}, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.iterate(context.Background()))

	_, ok := mgr.StateStore().Get("critical")
	assert.True(t, ok)
}

func TestManager_Iterate_SkipsTierOnResourceLimitsError(t *testing.T) {
	opts := noElectionOptions()
	opts.TierOrder = []domain.Tier{"critical"}
	opts.Tiers["critical"] = scaler.TierConfig{
		Tier:                "critical",
		PrimaryInstanceType: "unknown-type",
		MinIdle:             1,
		MaxIdle:             5,
	}

	agents := collaborator.NewFakeAgentManagement()

	mgr, err := NewManager(opts, agents, &collaborator.FakeScheduler{}, &collaborator.FakeJobOperations{}, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.iterate(context.Background()))

	_, ok := mgr.StateStore().Get("critical")
	assert.False(t, ok)
}

func TestManager_Iterate_AutoScalingDisabledSkipsEverything(t *testing.T) {
	opts := noElectionOptions()
	opts.AutoScalingEnabled = false
	opts.TierOrder = []domain.Tier{"critical"}
	opts.Tiers["critical"] = scaler.TierConfig{Tier: "critical", PrimaryInstanceType: "c5.xlarge", MinIdle: 1, MaxIdle: 5}

	mgr, err := NewManager(opts, collaborator.NewFakeAgentManagement(), &collaborator.FakeScheduler{}, &collaborator.FakeJobOperations{}, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.iterate(context.Background()))

	_, ok := mgr.StateStore().Get("critical")
	assert.False(t, ok)
}
