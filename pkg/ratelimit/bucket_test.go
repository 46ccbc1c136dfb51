package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_TryTake_GrantsUpToMax(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewTokenBucket(50, 2, now)

	granted, next, ok := b.TryTake(1, 5, now)
	assert.True(t, ok)
	assert.Equal(t, 5, granted)
	assert.Equal(t, 45, next.Tokens(now))
}

func TestTokenBucket_TryTake_RefillsOverTime(t *testing.T) {
	start := time.Unix(0, 0)
	b := TokenBucket{Capacity: 50, RefillRate: 2, tokens: 0, lastRefill: start}

	later := start.Add(5 * time.Second)
	granted, next, ok := b.TryTake(1, 50, later)
	assert.True(t, ok)
	assert.Equal(t, 10, granted)
	assert.Equal(t, 0, next.Tokens(later))
}

func TestTokenBucket_TryTake_BelowMinDoesNotConsume(t *testing.T) {
	start := time.Unix(0, 0)
	b := TokenBucket{Capacity: 50, RefillRate: 2, tokens: 0, lastRefill: start}

	granted, next, ok := b.TryTake(5, 50, start)
	assert.False(t, ok)
	assert.Equal(t, 0, granted)
	assert.Equal(t, 0, next.Tokens(start))
}

func TestTokenBucket_TryTake_CapsAtCapacity(t *testing.T) {
	start := time.Unix(0, 0)
	b := NewTokenBucket(10, 2, start)

	muchLater := start.Add(time.Hour)
	granted, next, ok := b.TryTake(1, 100, muchLater)
	assert.True(t, ok)
	assert.Equal(t, 10, granted)
	assert.Equal(t, 0, next.Tokens(muchLater))
}

func TestCooldownGate_Elapsed_ZeroValueIsAlwaysOpen(t *testing.T) {
	g := CooldownGate{Interval: time.Minute}
	assert.True(t, g.Elapsed(time.Now()))
}

func TestCooldownGate_Elapsed_RespectsInterval(t *testing.T) {
	start := time.Unix(0, 0)
	g := CooldownGate{Interval: time.Minute}.Fired(start)

	assert.False(t, g.Elapsed(start.Add(30*time.Second)))
	assert.True(t, g.Elapsed(start.Add(time.Minute)))
}
