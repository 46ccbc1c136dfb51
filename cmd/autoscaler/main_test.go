package main

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromViper_Defaults(t *testing.T) {
	cmd := newRunCommand()
	v := viper.New()
	for _, name := range []string{
		"kubeconfig", "metrics-addr", "health-probe-addr",
		"leader-election-enabled", "leader-election-id", "leader-election-namespace", "leader-election-identity",
		"log-level", "log-format", "development-mode",
		"auto-scaling-enabled", "iteration-interval", "activation-delay", "evaluation-timeout",
		"agent-instance-removable-timeout", "bucket-capacity", "refill-rate",
	} {
		require.NoError(t, v.BindPFlag(name, cmd.Flags().Lookup(name)))
	}

	opts, err := optionsFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", opts.MetricsAddr)
	assert.Equal(t, ":8081", opts.HealthProbeAddr)
	assert.True(t, opts.EnableLeaderElection)
	assert.Equal(t, "fleet-autoscaler-leader", opts.LeaderElectionID)
	assert.Equal(t, 30*time.Second, opts.IterationInterval)
	assert.Equal(t, 50, opts.BucketCapacity)
	assert.Empty(t, opts.TierOrder)
}

func TestOptionsFromViper_Tiers(t *testing.T) {
	v := viper.New()
	v.Set("tiers", []map[string]interface{}{
		{
			"tier":                "critical",
			"primaryInstanceType": "c5.xlarge",
			"minIdle":             2,
			"maxIdle":             10,
			"scaleUpCooldown":     "30s",
			"scaleDownCooldown":   "2m",
			"taskSlo":             "90s",
		},
	})

	opts, err := optionsFromViper(v)
	require.NoError(t, err)
	require.Len(t, opts.TierOrder, 1)

	tier := opts.TierOrder[0]
	assert.Equal(t, "critical", string(tier))

	cfg := opts.Tiers[tier]
	assert.Equal(t, "c5.xlarge", cfg.PrimaryInstanceType)
	assert.Equal(t, 2, cfg.MinIdle)
	assert.Equal(t, 10, cfg.MaxIdle)
	assert.Equal(t, 30*time.Second, cfg.ScaleUpCooldown)
	assert.Equal(t, 90*time.Second, cfg.TaskSLO)
}

func TestEnvKeyReplacer(t *testing.T) {
	r := envKeyReplacer{}
	assert.Equal(t, "LEADER_ELECTION_ID", r.Replace("LEADER-ELECTION-ID"))
	assert.Equal(t, "LOG_LEVEL", r.Replace("LOG.LEVEL"))
}

func TestBindConfig_EnvOverride(t *testing.T) {
	os.Setenv("AUTOSCALER_LOG_LEVEL", "debug")
	defer os.Unsetenv("AUTOSCALER_LOG_LEVEL")

	v := viper.New()
	require.NoError(t, bindConfig(v, ""))

	assert.Equal(t, "debug", v.GetString("log-level"))
}

func TestNewRootCommand_HasSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["version"])
}
