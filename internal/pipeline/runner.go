package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// Runner runs a coordinator in the background so the control API can stop it
// and start it again. Every run derives from the base context; once base is
// done no further run starts.
type Runner struct {
	c    *Coordinator
	base context.Context

	mu     sync.Mutex
	cancel context.CancelFunc // nil when no run is active
	done   chan struct{}
}

// NewRunner wraps c. Nothing runs until Start.
func NewRunner(base context.Context, c *Coordinator) *Runner {
	done := make(chan struct{})
	close(done)
	return &Runner{c: c, base: base, done: done}
}

// Start launches a run and returns immediately. It reports false when a run is
// still active, including one that is draining after Stop, or base is done.
func (r *Runner) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.base.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(r.base)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		if err := r.c.Start(ctx); err != nil {
			slog.Error("[Coordinator] Pipeline run failed", "error", err)
		}
		cancel()

		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()
	return true
}

// Stop asks the active run to drain and returns without waiting. It reports
// false when no run is active.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Running reports whether a run is active or still draining.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Done is closed when the latest run has fully drained. It is already closed
// before the first Start.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Status returns the per-partition status of the coordinator.
func (r *Runner) Status() []PartitionStatus {
	return r.c.Status()
}
