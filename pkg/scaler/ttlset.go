package scaler

import (
	"sync"
	"time"
)

// TTLSet is the process-wide recentlyScaledFor scratch state: a set of
// task IDs with approximate, windowed expiration; exact expiration is
// not required. Lookups lazily evict expired entries rather than
// running a background sweep, keeping the type a plain value holder.
type TTLSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

// NewTTLSet builds an empty set with the given entry lifetime.
func NewTTLSet(ttl time.Duration) *TTLSet {
	return &TTLSet{ttl: ttl, entries: make(map[string]time.Time)}
}

// Contains reports whether id was inserted within the last ttl window as
// of now, evicting it first if it has expired.
func (s *TTLSet) Contains(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	insertedAt, ok := s.entries[id]
	if !ok {
		return false
	}
	if now.Sub(insertedAt) >= s.ttl {
		delete(s.entries, id)
		return false
	}
	return true
}

// Add inserts id, recording now as its insertion time.
func (s *TTLSet) Add(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = now
}

// Evict removes every entry older than ttl as of now. Intended to be
// called once per iteration so the set does not grow unbounded between
// lookups of long-idle IDs.
func (s *TTLSet) Evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, insertedAt := range s.entries {
		if now.Sub(insertedAt) >= s.ttl {
			delete(s.entries, id)
		}
	}
}

// Len reports the current entry count, including any not-yet-evicted
// expired entries. Used only by tests.
func (s *TTLSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
