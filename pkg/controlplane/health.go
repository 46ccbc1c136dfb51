package controlplane

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

// HealthChecker reports the loop driver's liveness/readiness. There is
// no external API to poll here: health is derived from the age of the
// last completed iteration, pushed in by the loop driver's Iterate
// wrapper rather than pulled by a periodic goroutine.
type HealthChecker struct {
	mu                sync.RWMutex
	maxIterationAge   time.Duration
	lastIterationAt   time.Time
	lastIterationErr  error
	leader            bool
	shutdownInitiated bool
}

// NewHealthChecker creates a HealthChecker that considers the loop
// unhealthy once maxIterationAge has elapsed since the last completed
// iteration.
func NewHealthChecker(maxIterationAge time.Duration) *HealthChecker {
	return &HealthChecker{maxIterationAge: maxIterationAge}
}

// RecordIteration is called by the loop driver after every iteration,
// successful or not.
func (h *HealthChecker) RecordIteration(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastIterationAt = at
	h.lastIterationErr = err
}

// SetLeader records whether this process currently holds the leader lease.
// A non-leader replica is always ready (it is idle by design) but is not
// expected to have recent iterations.
func (h *HealthChecker) SetLeader(leader bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leader = leader
}

// SetShuttingDown marks the process as draining; readiness reports false
// while liveness keeps reporting true so the pod is not killed mid-drain.
func (h *HealthChecker) SetShuttingDown(shuttingDown bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownInitiated = shuttingDown
}

// IsHealthy reports liveness: the process is alive regardless of whether
// it currently holds leadership.
func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return true
}

// IsReady reports readiness: a non-leader is always ready; a leader is
// ready only if it has completed an iteration within maxIterationAge.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.shutdownInitiated {
		return false
	}
	if !h.leader {
		return true
	}
	if h.lastIterationAt.IsZero() {
		return false
	}
	return time.Since(h.lastIterationAt) < h.maxIterationAge
}

// LastError returns the error (if any) from the most recently completed
// iteration.
func (h *HealthChecker) LastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastIterationErr
}

// LastIterationAt returns when the last iteration completed.
func (h *HealthChecker) LastIterationAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastIterationAt
}

// livenessCheck and readinessCheck adapt IsHealthy/IsReady to
// healthz.Checker (func(*http.Request) error), wired directly into
// sigs.k8s.io/controller-runtime/pkg/healthz.Handler since there is no
// Manager owning the HTTP mux.
func (h *HealthChecker) livenessCheck(_ *http.Request) error {
	if h.IsHealthy() {
		return nil
	}
	return errors.New("process unhealthy")
}

func (h *HealthChecker) readinessCheck(_ *http.Request) error {
	if h.IsReady() {
		return nil
	}
	if err := h.LastError(); err != nil {
		return err
	}
	if h.LastIterationAt().IsZero() {
		return errors.New("no iteration has completed yet")
	}
	return errors.New("last iteration too old")
}

// HealthzHandler implements the /healthz liveness endpoint.
func (h *HealthChecker) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	(&healthz.Handler{Checks: map[string]healthz.Checker{"ping": h.livenessCheck}}).ServeHTTP(w, r)
}

// ReadyzHandler implements the /readyz readiness endpoint.
func (h *HealthChecker) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	(&healthz.Handler{Checks: map[string]healthz.Checker{"iteration-age": h.readinessCheck}}).ServeHTTP(w, r)
}
