package scaler

import (
	"sync"
	"time"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/ratelimit"
)

// Gauges is the last-observed metric snapshot for one tier, pushed
// explicitly after each evaluation rather than polled off the scaler,
// avoiding a cyclic handle from the metrics recorder back into live
// scaler state.
type Gauges struct {
	IdleCount        int
	FailedCount      int
	SLOViolatorCount int
	ProposedUp       int
	ExecutedUp       int
	ProposedDown     int
	ExecutedDown     int
}

// TierState is the persistent-across-iterations execution state for one
// tier: cooldown gates, token buckets, and the last-pushed gauges.
type TierState struct {
	ScaleUpCooldown   ratelimit.CooldownGate
	ScaleDownCooldown ratelimit.CooldownGate
	ScaleUpBucket     ratelimit.TokenBucket
	ScaleDownBucket   ratelimit.TokenBucket
	Gauges            Gauges
}

// NewTierState builds a fresh TierState with full buckets and open
// cooldowns, using the tier and global configuration to size the
// buckets and cooldown intervals.
func NewTierState(tierCfg TierConfig, globalCfg GlobalConfig, now time.Time) TierState {
	return TierState{
		ScaleUpCooldown:   ratelimit.CooldownGate{Interval: tierCfg.ScaleUpCooldown},
		ScaleDownCooldown: ratelimit.CooldownGate{Interval: tierCfg.ScaleDownCooldown},
		ScaleUpBucket:     ratelimit.NewTokenBucket(globalCfg.BucketCapacity, globalCfg.RefillRate, now),
		ScaleDownBucket:   ratelimit.NewTokenBucket(globalCfg.BucketCapacity, globalCfg.RefillRate, now),
	}
}

// StateStore holds one TierState per tier behind an RWMutex: the loop
// goroutine writes once per iteration, while metrics/health reporting
// reads concurrently.
type StateStore struct {
	mu     sync.RWMutex
	states map[domain.Tier]TierState
}

// NewStateStore builds an empty store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[domain.Tier]TierState)}
}

// Get returns the tier's state and whether it was present.
func (s *StateStore) Get(tier domain.Tier) (TierState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[tier]
	return st, ok
}

// Set replaces the tier's state.
func (s *StateStore) Set(tier domain.Tier, state TierState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[tier] = state
}

// Snapshot returns a copy of every tier's current state, safe to iterate
// without holding the store's lock.
func (s *StateStore) Snapshot() map[domain.Tier]TierState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Tier]TierState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}
