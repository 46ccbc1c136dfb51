// Package loop implements the autoscaler's top-level scheduling model: a
// single-threaded cooperative loop that fires one evaluation per tick,
// bounded by a hard per-iteration timeout, with clean start/stop
// semantics. Patterned on a ticker-plus-select run loop (ticker +
// select over stopCh/ticker.C) but generalized into a reusable type
// instead of living inline in main, so the autoscaler's lifecycle is
// explicit start/stop rather than hidden module state.
package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Iteration is one evaluation pass. Its context is cancelled once
// EvaluationTimeout elapses; the caller is expected to give up cleanly
// rather than block past it.
type Iteration func(ctx context.Context) error

// Driver fires one Iteration every IterationInterval, starting after an
// initial ActivationDelay, bounding each call by EvaluationTimeout.
// Errors returned by Iteration are logged and never stop the loop.
type Driver struct {
	ActivationDelay    time.Duration
	IterationInterval  time.Duration
	EvaluationTimeout  time.Duration
	Iterate            Iteration
	Logger             *zap.SugaredLogger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Start begins the loop in a background goroutine. Calling Start on an
// already-running Driver is a no-op.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})

	go d.run(ctx, d.stopCh, d.doneCh)
}

// Stop signals the loop to exit and blocks until the current iteration
// (if any) finishes or times out. Calling Stop on a non-running Driver
// is a no-op.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	stopCh, doneCh := d.stopCh, d.doneCh
	d.running = false
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (d *Driver) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	activation := time.NewTimer(d.ActivationDelay)
	defer activation.Stop()

	select {
	case <-stopCh:
		return
	case <-activation.C:
	}

	d.runOneIteration(ctx, stopCh)

	ticker := time.NewTicker(d.IterationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			d.runOneIteration(ctx, stopCh)
		}
	}
}

// runOneIteration bounds Iterate by EvaluationTimeout. If stopCh closes
// mid-iteration the iteration is still permitted to finish up to its
// deadline rather than being cut off abruptly.
func (d *Driver) runOneIteration(ctx context.Context, stopCh <-chan struct{}) {
	iterCtx, cancel := context.WithTimeout(ctx, d.EvaluationTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("iteration panicked: %v", r)
			}
		}()
		errCh <- d.Iterate(iterCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil && d.Logger != nil {
			d.Logger.Errorw("iteration returned an error", "error", err)
		}
	case <-iterCtx.Done():
		if d.Logger != nil {
			d.Logger.Warnw("iteration exceeded evaluation timeout, abandoning", "timeout", d.EvaluationTimeout)
		}
	}
}
