// Package view applies batch deltas to persisted view rows with optimistic concurrency.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/sync/errgroup"
)

// Outcome is the per-key result of Apply.
type Outcome int

const (
	// Committed means the delta is durable in the row (or was already there).
	Committed Outcome = iota
	// Conflict means the last attempt lost a compare-and-swap and retrying stopped
	// because the context was cancelled.
	Conflict
	// Failed means the key could not be written; see Result.Err.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Conflict:
		return "conflict"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports what happened to one key.
type Result struct {
	Key     aggregation.AggregationKey
	Outcome Outcome
	// Token is the row's concurrency token after a commit.
	Token string
	// Attempts counts read-modify-write attempts; Conflicts counts the ones that lost a CAS.
	Attempts  int
	Conflicts int
	// AlreadyApplied is set when dedup found every record of the delta in the row.
	AlreadyApplied bool
	Err            error
}

// Options tunes the writer.
type Options struct {
	MaxAttempts int           // read-modify-write attempts per key
	BaseDelay   time.Duration // first backoff delay
	MaxDelay    time.Duration // backoff ceiling
	Concurrency int           // keys written in parallel
	Dedup       bool          // skip records already covered by row watermarks
	Clock       clock.Clock
}

func (o Options) normalized() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 10 * time.Millisecond
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}

// Writer merges partial aggregates into view rows. It is safe for concurrent use.
type Writer struct {
	store storage.ViewStore
	opts  Options
}

// NewWriter creates a writer over store.
func NewWriter(store storage.ViewStore, opts Options) *Writer {
	return &Writer{store: store, opts: opts.normalized()}
}

// Apply writes every delta and returns one result per key. A started write is
// never interrupted by ctx; cancellation only prevents further attempts.
func (w *Writer) Apply(ctx context.Context, deltas map[aggregation.AggregationKey]*aggregation.PartialAggregate) map[aggregation.AggregationKey]Result {
	results := make(map[aggregation.AggregationKey]Result, len(deltas))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for key, delta := range deltas {
		key, delta := key, delta
		g.Go(func() error {
			res := w.applyOne(ctx, key, delta)
			mu.Lock()
			results[key] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// applyOne runs the read-modify-write loop for one key.
func (w *Writer) applyOne(ctx context.Context, key aggregation.AggregationKey, delta *aggregation.PartialAggregate) Result {
	res := Result{Key: key}
	if err := ctx.Err(); err != nil {
		res.Outcome = Failed
		res.Err = err
		return res
	}

	writeCtx := context.WithoutCancel(ctx)
	var last error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			res.Attempts++
			token, applied, err := w.tryOnce(writeCtx, key, delta)
			if errors.Is(err, storage.ErrConflict) {
				res.Conflicts++
			}
			if err != nil {
				last = err
				return err
			}
			res.Token = token
			res.AlreadyApplied = !applied
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			slog.Debug("[ViewWriter] Retrying key",
				"view", key.View,
				"key", key.Key,
				"attempt", attempt,
				"error", err)
		},
		Attempts:    w.opts.MaxAttempts,
		Delay:       w.opts.BaseDelay,
		MaxDelay:    w.opts.MaxDelay,
		BackoffFunc: retry.ExpBackoff(w.opts.BaseDelay, w.opts.MaxDelay, 2.0, true),
		Clock:       w.opts.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		res.Outcome = Committed
		return res
	}

	if last == nil {
		last = err
	}
	switch {
	case ctx.Err() != nil && errors.Is(last, storage.ErrConflict):
		res.Outcome = Conflict
		res.Err = last
	case errors.Is(last, storage.ErrConflict):
		res.Outcome = Failed
		res.Err = fmt.Errorf("conflict retries exhausted after %d attempts: %w", res.Attempts, last)
	default:
		res.Outcome = Failed
		res.Err = last
	}

	slog.Warn("[ViewWriter] Key not committed",
		"view", key.View,
		"key", key.Key,
		"outcome", res.Outcome.String(),
		"attempts", res.Attempts,
		"error", res.Err)
	return res
}

// tryOnce reads the row, merges the delta and writes it back conditioned on
// the token it read. applied is false when dedup left nothing to write.
func (w *Writer) tryOnce(ctx context.Context, key aggregation.AggregationKey, delta *aggregation.PartialAggregate) (string, bool, error) {
	current, err := w.store.GetRow(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		current = aggregation.EmptyRow(key)
	} else if err != nil {
		return "", false, err
	}

	next, changed := current.Merge(delta, w.opts.Dedup)
	if !changed {
		return current.ConcurrencyToken, false, nil
	}

	token, err := w.store.PutRow(ctx, next, current.ConcurrencyToken)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}
