// Package pipeline drives change records from the source through aggregation
// into view rows and advances the per-partition checkpoint once they are durable.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/view"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned by Start on a coordinator that is running.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Folder turns a batch into per-key deltas.
type Folder interface {
	Fold(batch []*v1.ChangeRecord) aggregation.FoldResult
}

// Applier writes deltas to view rows.
type Applier interface {
	Apply(ctx context.Context, deltas map[aggregation.AggregationKey]*aggregation.PartialAggregate) map[aggregation.AggregationKey]view.Result
}

// RecordSink receives every batch during Writing, before the checkpoint moves.
// Copy must be idempotent since a batch may be delivered more than once.
type RecordSink interface {
	Copy(ctx context.Context, batch []*v1.ChangeRecord) error
}

// Dependencies are the collaborators shared by every partition worker.
type Dependencies struct {
	Source      storage.ChangeSource
	Checkpoints storage.CheckpointStore
	DeadLetters storage.DeadLetterStore
	Folder      Folder
	Writer      Applier
	Sink        RecordSink // optional
	Observer    Observer   // optional
}

// Coordinator runs one worker per partition.
type Coordinator struct {
	deps    Dependencies
	opts    Options
	workers []*worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	started bool
	done    chan struct{}
}

// NewCoordinator wires a coordinator. Nothing runs until Start.
func NewCoordinator(deps Dependencies, opts Options) *Coordinator {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	opts = opts.normalized()

	ids := append([]int(nil), opts.Partitions...)
	sort.Ints(ids)

	c := &Coordinator{deps: deps, opts: opts, done: make(chan struct{})}
	for _, id := range ids {
		c.workers = append(c.workers, newWorker(id, deps, opts))
	}
	return c
}

// Start runs every partition worker and blocks until ctx is cancelled or Stop
// is called and all workers have drained.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	if c.started {
		c.done = make(chan struct{})
	}
	c.started = true
	done := c.done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		close(done)
	}()

	slog.Info("[Coordinator] Starting pipeline",
		"partitions", len(c.workers),
		"batch_size", c.opts.BatchSize,
		"poll_interval", c.opts.PollInterval,
		"max_batch_attempts", c.opts.MaxBatchAttempts,
	)

	var g errgroup.Group
	for _, w := range c.workers {
		w := w
		g.Go(func() error {
			return w.run(ctx)
		})
	}
	err := g.Wait()

	slog.Info("[Coordinator] Pipeline stopped")
	return err
}

// Stop signals every worker to drain and returns without waiting.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		slog.Info("[Coordinator] Stop requested")
		c.cancel()
	}
}

// Done is closed when the current run has fully drained.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Running reports whether Start is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot per partition, ordered by partition.
func (c *Coordinator) Status() []PartitionStatus {
	out := make([]PartitionStatus, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, w.snapshot())
	}
	return out
}
