package controlplane

import (
	"fmt"
	"time"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/scaler"
)

// Options holds the full configuration for one autoscaler process: the
// decision-loop configuration plus the ambient fields needed to run it
// as a service (leader election, metrics/health endpoints, logging).
type Options struct {
	// Kubeconfig is the path to the kubeconfig file used to build the
	// leader-election client. If empty, uses in-cluster configuration.
	Kubeconfig string

	// MetricsAddr is the address the Prometheus metrics endpoint binds to.
	MetricsAddr string

	// HealthProbeAddr is the address the health probe endpoint binds to.
	HealthProbeAddr string

	// EnableLeaderElection enables leader election so only one replica of
	// the autoscaler drives the loop at a time.
	EnableLeaderElection bool

	// LeaderElectionID names the Lease object leader election coordinates on.
	LeaderElectionID string

	// LeaderElectionNamespace is the namespace the Lease lives in.
	LeaderElectionNamespace string

	// LeaderElectionIdentity identifies this process in the Lease record.
	// Defaults to the pod hostname when empty.
	LeaderElectionIdentity string

	// LogLevel is a log verbosity level (debug, info, warn, error). Validate
	// checks it; the logger NewManager builds does not read it.
	LogLevel string

	// LogFormat is a log format (json, console). Validate checks it; the
	// logger NewManager builds does not read it.
	LogFormat string

	// DevelopmentMode enables development mode with more verbose logging.
	// It alone selects the configuration of the logger NewManager builds.
	DevelopmentMode bool

	// AutoScalingEnabled, IterationInterval, ActivationDelay,
	// EvaluationTimeout and AgentInstanceRemovableTimeout are the
	// process's global configuration keys.
	AutoScalingEnabled            bool
	IterationInterval             time.Duration
	ActivationDelay               time.Duration
	EvaluationTimeout             time.Duration
	AgentInstanceRemovableTimeout time.Duration

	// BucketCapacity and RefillRate size every tier's token bucket.
	BucketCapacity int
	RefillRate     float64

	// TierOrder and Tiers carry the per-tier policy blocks.
	TierOrder []domain.Tier
	Tiers     map[domain.Tier]scaler.TierConfig
}

// NewDefaultOptions returns Options with default values, no tiers
// configured. Callers populate TierOrder/Tiers from loaded configuration.
func NewDefaultOptions() *Options {
	return &Options{
		MetricsAddr:                   ":8080",
		HealthProbeAddr:               ":8081",
		EnableLeaderElection:          true,
		LeaderElectionID:              "fleet-autoscaler-leader",
		LeaderElectionNamespace:       "kube-system",
		LogLevel:                      "info",
		LogFormat:                     "json",
		DevelopmentMode:               false,
		AutoScalingEnabled:            true,
		IterationInterval:             30 * time.Second,
		ActivationDelay:               5 * time.Minute,
		EvaluationTimeout:             5 * time.Minute,
		AgentInstanceRemovableTimeout: 10 * time.Minute,
		BucketCapacity:                50,
		RefillRate:                    2,
		Tiers:                         make(map[domain.Tier]scaler.TierConfig),
	}
}

// Validate validates the options and returns an error if any option is invalid.
func (o *Options) Validate() error {
	if o.MetricsAddr == "" {
		return fmt.Errorf("metrics address cannot be empty")
	}

	if o.HealthProbeAddr == "" {
		return fmt.Errorf("health probe address cannot be empty")
	}

	if o.MetricsAddr == o.HealthProbeAddr {
		return fmt.Errorf("metrics address and health probe address cannot be the same")
	}

	if o.EnableLeaderElection {
		if o.LeaderElectionID == "" {
			return fmt.Errorf("leader election ID cannot be empty when leader election is enabled")
		}
		if o.LeaderElectionNamespace == "" {
			return fmt.Errorf("leader election namespace cannot be empty when leader election is enabled")
		}
	}

	if o.IterationInterval <= 0 {
		return fmt.Errorf("iteration interval must be greater than zero")
	}

	if o.EvaluationTimeout <= 0 {
		return fmt.Errorf("evaluation timeout must be greater than zero")
	}

	if o.ActivationDelay < 0 {
		return fmt.Errorf("activation delay cannot be negative")
	}

	if o.AgentInstanceRemovableTimeout <= 0 {
		return fmt.Errorf("agent instance removable timeout must be greater than zero")
	}

	if o.BucketCapacity <= 0 {
		return fmt.Errorf("bucket capacity must be greater than zero")
	}

	if o.RefillRate <= 0 {
		return fmt.Errorf("refill rate must be greater than zero")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.LogLevel] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", o.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[o.LogFormat] {
		return fmt.Errorf("invalid log format '%s', must be one of: json, console", o.LogFormat)
	}

	for _, tier := range o.TierOrder {
		cfg, ok := o.Tiers[tier]
		if !ok {
			return fmt.Errorf("tier %q listed in tier order but has no configuration", tier)
		}
		if cfg.PrimaryInstanceType == "" {
			return fmt.Errorf("tier %q: primary instance type cannot be empty", tier)
		}
		if cfg.MinIdle < 0 || cfg.MaxIdle < cfg.MinIdle {
			return fmt.Errorf("tier %q: invalid minIdle/maxIdle (%d/%d)", tier, cfg.MinIdle, cfg.MaxIdle)
		}
	}

	return nil
}

// Complete fills in any fields not set that are required to have valid data.
func (o *Options) Complete() error {
	defaults := NewDefaultOptions()

	if o.MetricsAddr == "" {
		o.MetricsAddr = defaults.MetricsAddr
	}
	if o.HealthProbeAddr == "" {
		o.HealthProbeAddr = defaults.HealthProbeAddr
	}
	if o.LeaderElectionID == "" {
		o.LeaderElectionID = defaults.LeaderElectionID
	}
	if o.LeaderElectionNamespace == "" {
		o.LeaderElectionNamespace = defaults.LeaderElectionNamespace
	}
	if o.IterationInterval == 0 {
		o.IterationInterval = defaults.IterationInterval
	}
	if o.EvaluationTimeout == 0 {
		o.EvaluationTimeout = defaults.EvaluationTimeout
	}
	if o.AgentInstanceRemovableTimeout == 0 {
		o.AgentInstanceRemovableTimeout = defaults.AgentInstanceRemovableTimeout
	}
	if o.BucketCapacity == 0 {
		o.BucketCapacity = defaults.BucketCapacity
	}
	if o.RefillRate == 0 {
		o.RefillRate = defaults.RefillRate
	}
	if o.LogLevel == "" {
		o.LogLevel = defaults.LogLevel
	}
	if o.LogFormat == "" {
		o.LogFormat = defaults.LogFormat
	}
	if o.Tiers == nil {
		o.Tiers = make(map[domain.Tier]scaler.TierConfig)
	}

	return nil
}

// GlobalConfig projects the loop-relevant subset of Options into a
// scaler.GlobalConfig, the shape pkg/scaler's Runner/Reaper consume.
func (o *Options) GlobalConfig() scaler.GlobalConfig {
	return scaler.GlobalConfig{
		AutoScalingEnabled:            o.AutoScalingEnabled,
		IterationInterval:             o.IterationInterval,
		ActivationDelay:               o.ActivationDelay,
		EvaluationTimeout:             o.EvaluationTimeout,
		AgentInstanceRemovableTimeout: o.AgentInstanceRemovableTimeout,
		TierOrder:                     o.TierOrder,
		Tiers:                         o.Tiers,
		BucketCapacity:                o.BucketCapacity,
		RefillRate:                    o.RefillRate,
	}
}
