package controlplane

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/scaler"
)

func TestNewDefaultOptions(t *testing.T) {
	opts := NewDefaultOptions()

	require.NotNil(t, opts)
	assert.Equal(t, ":8080", opts.MetricsAddr)
	assert.Equal(t, ":8081", opts.HealthProbeAddr)
	assert.True(t, opts.EnableLeaderElection)
	assert.Equal(t, "fleet-autoscaler-leader", opts.LeaderElectionID)
	assert.Equal(t, "kube-system", opts.LeaderElectionNamespace)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, "json", opts.LogFormat)
	assert.Equal(t, 30*time.Second, opts.IterationInterval)
	assert.Equal(t, 50, opts.BucketCapacity)
	assert.NotNil(t, opts.Tiers)
}

func validOptions() *Options {
	opts := NewDefaultOptions()
	opts.TierOrder = []domain.Tier{"critical"}
	opts.Tiers["critical"] = scaler.TierConfig{
		Tier:                "critical",
		PrimaryInstanceType: "c5.xlarge",
		MinIdle:             1,
		MaxIdle:             5,
	}
	return opts
}

func TestOptions_Validate_Valid(t *testing.T) {
	assert.NoError(t, validOptions().Validate())
}

func TestOptions_Validate_EmptyMetricsAddr(t *testing.T) {
	opts := validOptions()
	opts.MetricsAddr = ""
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_SameAddrs(t *testing.T) {
	opts := validOptions()
	opts.HealthProbeAddr = opts.MetricsAddr
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_LeaderElectionRequiresID(t *testing.T) {
	opts := validOptions()
	opts.EnableLeaderElection = true
	opts.LeaderElectionID = ""
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_LeaderElectionDisabled(t *testing.T) {
	opts := validOptions()
	opts.EnableLeaderElection = false
	opts.LeaderElectionID = ""
	opts.LeaderElectionNamespace = ""
	assert.NoError(t, opts.Validate())
}

func TestOptions_Validate_NonPositiveIterationInterval(t *testing.T) {
	opts := validOptions()
	opts.IterationInterval = 0
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_NegativeActivationDelay(t *testing.T) {
	opts := validOptions()
	opts.ActivationDelay = -time.Second
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_InvalidLogLevel(t *testing.T) {
	opts := validOptions()
	opts.LogLevel = "verbose"
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_InvalidLogFormat(t *testing.T) {
	opts := validOptions()
	opts.LogFormat = "xml"
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_TierMissingConfig(t *testing.T) {
	opts := validOptions()
	opts.TierOrder = append(opts.TierOrder, "flex")
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_TierEmptyInstanceType(t *testing.T) {
	opts := validOptions()
	cfg := opts.Tiers["critical"]
	cfg.PrimaryInstanceType = ""
	opts.Tiers["critical"] = cfg
	assert.Error(t, opts.Validate())
}

func TestOptions_Validate_TierBadIdleBounds(t *testing.T) {
	opts := validOptions()
	cfg := opts.Tiers["critical"]
	cfg.MinIdle = 5
	cfg.MaxIdle = 1
	opts.Tiers["critical"] = cfg
	assert.Error(t, opts.Validate())
}

func TestOptions_Complete_FillsDefaults(t *testing.T) {
	opts := &Options{}
	require.NoError(t, opts.Complete())

	assert.Equal(t, ":8080", opts.MetricsAddr)
	assert.Equal(t, ":8081", opts.HealthProbeAddr)
	assert.Equal(t, "fleet-autoscaler-leader", opts.LeaderElectionID)
	assert.Equal(t, 30*time.Second, opts.IterationInterval)
	assert.NotNil(t, opts.Tiers)
}

func TestOptions_Complete_PreservesSetFields(t *testing.T) {
	opts := &Options{MetricsAddr: ":9999", LogLevel: "debug"}
	require.NoError(t, opts.Complete())

	assert.Equal(t, ":9999", opts.MetricsAddr)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestOptions_GlobalConfig(t *testing.T) {
	opts := validOptions()
	gc := opts.GlobalConfig()

	assert.Equal(t, opts.AutoScalingEnabled, gc.AutoScalingEnabled)
	assert.Equal(t, opts.IterationInterval, gc.IterationInterval)
	assert.Equal(t, opts.TierOrder, gc.TierOrder)
	assert.Equal(t, opts.Tiers, gc.Tiers)
	assert.Equal(t, opts.BucketCapacity, gc.BucketCapacity)
	assert.Equal(t, opts.RefillRate, gc.RefillRate)
}
