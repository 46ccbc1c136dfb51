package scaler

import (
	"time"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
)

// TierConfig is one tier's independent autoscaling policy.
type TierConfig struct {
	Tier                    domain.Tier
	PrimaryInstanceType     string
	MinIdle                 int
	MaxIdle                 int
	ScaleUpCooldown         time.Duration
	ScaleDownCooldown       time.Duration
	IdleInstanceGracePeriod time.Duration
	TaskSLO                 time.Duration
}

// RecentlyScaledForTTL is the fixed lifetime of an entry in the
// recentlyScaledFor set: a task counted once toward scale-up demand is
// not counted again for this long, regardless of the per-iteration
// evaluation timeout. This is a fixed anti-flapping window, not a
// derived or configurable value.
const RecentlyScaledForTTL = 10 * time.Minute

// GlobalConfig is the whole decision loop's configuration.
type GlobalConfig struct {
	AutoScalingEnabled            bool
	IterationInterval             time.Duration
	ActivationDelay               time.Duration
	EvaluationTimeout             time.Duration
	AgentInstanceRemovableTimeout time.Duration

	// TierOrder fixes the order tiers are evaluated in each iteration.
	TierOrder []domain.Tier
	Tiers     map[domain.Tier]TierConfig

	BucketCapacity int
	RefillRate     float64
}

// DefaultGlobalConfig returns sane operational defaults with no tiers
// configured. Callers populate Tiers/TierOrder from loaded configuration.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		AutoScalingEnabled:            true,
		IterationInterval:             30 * time.Second,
		ActivationDelay:               5 * time.Minute,
		EvaluationTimeout:             5 * time.Minute,
		AgentInstanceRemovableTimeout: 10 * time.Minute,
		Tiers:                         make(map[domain.Tier]TierConfig),
		BucketCapacity:                50,
		RefillRate:                    2,
	}
}
