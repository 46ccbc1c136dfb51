package ratelimit

import "time"

// CooldownGate is a per-tier, per-direction minimum-interval gate,
// orthogonal to the token bucket, expressed as a value type: Elapsed
// reports whether the gate is open, and the caller advances LastFireAt
// itself only once an action was actually taken — failing to find
// capacity does not burn the cooldown.
type CooldownGate struct {
	Interval   time.Duration
	LastFireAt time.Time
}

// Elapsed reports whether Interval has passed since LastFireAt. A zero
// LastFireAt (never fired) is always elapsed.
func (g CooldownGate) Elapsed(now time.Time) bool {
	if g.LastFireAt.IsZero() {
		return true
	}
	return now.Sub(g.LastFireAt) >= g.Interval
}

// Fired returns the gate with LastFireAt advanced to now.
func (g CooldownGate) Fired(now time.Time) CooldownGate {
	g.LastFireAt = now
	return g
}
