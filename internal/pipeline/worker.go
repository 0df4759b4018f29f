package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/view"
	"github.com/juju/retry"
)

// worker consumes one partition sequentially.
type worker struct {
	id   int
	deps Dependencies
	opts Options

	mu     sync.Mutex
	status PartitionStatus
}

func newWorker(id int, deps Dependencies, opts Options) *worker {
	return &worker{
		id:     id,
		deps:   deps,
		opts:   opts,
		status: PartitionStatus{PartitionID: id, State: StateIdle},
	}
}

func (w *worker) snapshot() PartitionStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *worker) setState(s State) {
	w.mu.Lock()
	from := w.status.State
	w.status.State = s
	w.status.UpdatedAt = time.Now().UTC()
	w.mu.Unlock()

	if from != s {
		w.deps.Observer.StateChanged(w.id, from, s)
	}
}

func (w *worker) setError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		w.status.LastError = ""
		return
	}
	w.status.LastError = err.Error()
}

// run loops until ctx is cancelled. It only returns nil: every failure is
// retried, dead-lettered or left for reprocessing from the checkpoint.
func (w *worker) run(ctx context.Context) error {
	defer w.setState(StateStopped)

	after, err := w.loadCheckpoint(ctx)
	if err != nil {
		slog.Info("[Coordinator] Worker stopped before first batch", "partition", w.id)
		return nil
	}

	for ctx.Err() == nil {
		w.setState(StateFetchingBatch)
		batch, err := w.fetch(ctx, after)
		if err != nil {
			break
		}

		if len(batch) == 0 {
			w.setState(StateIdle)
			if !w.sleep(ctx, w.opts.PollInterval) {
				break
			}
			continue
		}

		next, ok := w.processBatch(ctx, batch)
		if !ok {
			slog.Info("[Coordinator] Batch abandoned on cancellation, will be reprocessed",
				"partition", w.id,
				"first_token", batch[0].SequenceToken,
				"last_token", batch[len(batch)-1].SequenceToken,
			)
			break
		}
		after = next

		// A short batch means the partition is drained; wait before polling again.
		if len(batch) < w.opts.BatchSize {
			w.setState(StateIdle)
			if !w.sleep(ctx, w.opts.PollInterval) {
				break
			}
		}
	}
	return nil
}

// loadCheckpoint reads the resume position, retrying until success or cancellation.
func (w *worker) loadCheckpoint(ctx context.Context) (int64, error) {
	var token int64
	err := w.retryForever(ctx, func() error {
		t, ok, err := w.deps.Checkpoints.GetCheckpoint(ctx, w.id)
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("[Coordinator] No checkpoint, starting from the beginning", "partition", w.id)
			t = 0
		}
		token = t
		return nil
	}, func(err error, attempt int) {
		w.setError(err)
		w.deps.Observer.CheckpointFailed(w.id, err)
		slog.Warn("[Coordinator] Read checkpoint failed, retrying", "partition", w.id, "attempt", attempt, "error", err)
	})
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	w.status.Checkpoint = token
	w.mu.Unlock()
	return token, nil
}

// fetch pulls the next batch, retrying an unavailable source with backoff.
func (w *worker) fetch(ctx context.Context, after int64) ([]*v1.ChangeRecord, error) {
	var batch []*v1.ChangeRecord
	err := w.retryForever(ctx, func() error {
		b, err := w.deps.Source.Pull(ctx, w.id, after, w.opts.BatchSize)
		if err != nil {
			return err
		}
		batch = b
		return nil
	}, func(err error, attempt int) {
		w.setError(err)
		w.deps.Observer.FetchFailed(w.id, err)
		slog.Warn("[Coordinator] Fetch failed, retrying", "partition", w.id, "after", after, "attempt", attempt, "error", err)
	})
	return batch, err
}

// processBatch folds, writes and checkpoints one batch. It returns the last
// token of the batch, or false when the batch was abandoned on cancellation.
func (w *worker) processBatch(ctx context.Context, batch []*v1.ChangeRecord) (int64, bool) {
	start := time.Now()
	first, last := batch[0].SequenceToken, batch[len(batch)-1].SequenceToken
	report := BatchReport{
		PartitionID: w.id,
		FirstToken:  first,
		LastToken:   last,
		Records:     len(batch),
	}

	w.setState(StateAggregating)
	fold := w.deps.Folder.Fold(batch)
	report.Eligible = fold.Eligible
	report.Ignored = fold.Ignored
	report.Poison = len(fold.Poison)
	report.Keys = len(fold.Deltas)

	if !w.write(ctx, batch, fold, &report) {
		report.Duration = time.Since(start)
		w.deps.Observer.BatchFinished(report)
		return 0, false
	}
	report.Committed = true

	// Poison is reported once the batch is settled; IDs are stable across replays.
	for _, p := range fold.Poison {
		w.deadLetter(ctx, storage.DeadLetter{
			ID:          storage.DeadLetterID(storage.DeadLetterPoison, w.id, p.SequenceToken, p.SourceKey),
			Kind:        storage.DeadLetterPoison,
			PartitionID: w.id,
			FirstToken:  first,
			LastToken:   last,
			SourceKey:   p.SourceKey,
			Reason:      p.Reason,
			Details:     p.Details,
		})
	}
	if len(fold.Poison) > 0 {
		slog.Warn("[Coordinator] Poison records dropped", "partition", w.id, "count", len(fold.Poison))
	}

	positions := fold.Positions
	if positions == nil {
		positions = map[int]int64{}
	}
	if positions[w.id] < last {
		positions[w.id] = last
	}

	w.setState(StateCheckpointing)
	report.CheckpointAdvanced = w.checkpoint(ctx, positions)
	report.Duration = time.Since(start)

	w.mu.Lock()
	w.status.BatchesProcessed++
	w.status.RecordsProcessed += int64(len(batch))
	w.status.PoisonDropped += int64(report.Poison)
	w.status.ConflictsRetried += int64(report.Conflicts)
	w.status.DeadLettered += int64(report.DeadLettered + report.Poison)
	if report.CheckpointAdvanced {
		w.status.Checkpoint = positions[w.id]
		w.status.LastError = ""
	}
	w.mu.Unlock()

	w.deps.Observer.BatchFinished(report)
	slog.Info("[Coordinator] Batch complete",
		"partition", w.id,
		"records", len(batch),
		"eligible", report.Eligible,
		"ignored", report.Ignored,
		"poison", report.Poison,
		"keys", report.Keys,
		"conflicts", report.Conflicts,
		"attempts", report.Attempts,
		"dead_lettered", report.DeadLettered,
		"cursor_advanced", fmt.Sprintf("%d -> %d", first-1, last),
	)

	// A checkpoint lost on shutdown only means the batch is reprocessed on restart.
	return last, true
}

// write applies the batch's deltas and feeds the sink. Keys that do not commit
// are re-folded and retried up to MaxBatchAttempts, then dead-lettered. It
// returns false when cancellation interrupted the batch before it was settled.
func (w *worker) write(ctx context.Context, batch []*v1.ChangeRecord, fold aggregation.FoldResult, report *BatchReport) bool {
	first, last := batch[0].SequenceToken, batch[len(batch)-1].SequenceToken
	pending := fold.Deltas
	copied := w.deps.Sink == nil

	for attempt := 1; ; attempt++ {
		w.setState(StateWriting)
		report.Attempts = attempt

		results := w.deps.Writer.Apply(ctx, pending)
		failed := make(map[aggregation.AggregationKey]view.Result)
		for k, res := range results {
			report.Conflicts += res.Conflicts
			if res.Outcome != view.Committed {
				failed[k] = res
			}
		}

		var copyErr error
		if !copied {
			if copyErr = w.deps.Sink.Copy(context.WithoutCancel(ctx), batch); copyErr == nil {
				copied = true
			}
		}

		if len(failed) == 0 && copyErr == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if attempt >= w.opts.MaxBatchAttempts {
			for k, res := range failed {
				w.deadLetter(ctx, storage.DeadLetter{
					ID:          storage.DeadLetterID(storage.DeadLetterWriteFailed, w.id, first, k.View+"/"+k.Key),
					Kind:        storage.DeadLetterWriteFailed,
					PartitionID: w.id,
					FirstToken:  first,
					LastToken:   last,
					View:        k.View,
					Key:         k.Key,
					Reason:      errString(res.Err),
					Details: map[string]interface{}{
						"outcome":  res.Outcome.String(),
						"attempts": attempt,
					},
				})
				report.DeadLettered++
			}
			if copyErr != nil {
				w.deadLetter(ctx, storage.DeadLetter{
					ID:          storage.DeadLetterID(storage.DeadLetterCopyFailed, w.id, first, ""),
					Kind:        storage.DeadLetterCopyFailed,
					PartitionID: w.id,
					FirstToken:  first,
					LastToken:   last,
					Reason:      copyErr.Error(),
				})
				report.DeadLettered++
			}
			slog.Error("[Coordinator] Batch attempts exhausted, dead-lettered and skipping",
				"partition", w.id,
				"first_token", first,
				"last_token", last,
				"failed_keys", len(failed),
				"copy_failed", copyErr != nil,
			)
			return true
		}

		w.setState(StateRetrying)
		slog.Warn("[Coordinator] Batch not fully committed, retrying",
			"partition", w.id,
			"attempt", attempt,
			"failed_keys", len(failed),
			"copy_error", copyErr,
		)
		if !w.sleep(ctx, w.backoff(attempt)) {
			return false
		}

		// Re-fold the same batch and keep only the keys still uncommitted.
		w.setState(StateAggregating)
		refold := w.deps.Folder.Fold(batch)
		pending = make(map[aggregation.AggregationKey]*aggregation.PartialAggregate, len(failed))
		for k := range failed {
			if d, ok := refold.Deltas[k]; ok {
				pending[k] = d
			}
		}
	}
}

// checkpoint advances every partition in positions, retrying until success or
// cancellation. After cancellation one best-effort attempt is made under the
// shutdown timeout.
func (w *worker) checkpoint(ctx context.Context, positions map[int]int64) bool {
	advance := func(ctx context.Context) error {
		for pid, token := range positions {
			if err := w.deps.Checkpoints.AdvanceCheckpoint(ctx, pid, token); err != nil {
				return fmt.Errorf("advance checkpoint partition %d to %d: %w", pid, token, err)
			}
		}
		return nil
	}

	err := w.retryForever(ctx, func() error {
		w.setState(StateCheckpointing)
		return advance(ctx)
	}, func(err error, attempt int) {
		w.setState(StateRetrying)
		w.setError(err)
		w.deps.Observer.CheckpointFailed(w.id, err)
		slog.Warn("[Coordinator] Checkpoint failed, retrying", "partition", w.id, "attempt", attempt, "error", err)
	})
	if err == nil {
		return true
	}

	bestEffort, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.ShutdownTimeout)
	defer cancel()
	if err := advance(bestEffort); err != nil {
		slog.Warn("[Coordinator] Best-effort checkpoint on shutdown failed, batch will be reprocessed",
			"partition", w.id,
			"error", err,
		)
		return false
	}
	slog.Info("[Coordinator] Checkpoint saved on shutdown", "partition", w.id)
	return true
}

func (w *worker) deadLetter(ctx context.Context, dl storage.DeadLetter) {
	if err := w.deps.DeadLetters.ReportDeadLetter(context.WithoutCancel(ctx), dl); err != nil {
		slog.Error("[Coordinator] Failed to record dead letter",
			"partition", w.id,
			"kind", dl.Kind,
			"source_key", dl.SourceKey,
			"view", dl.View,
			"key", dl.Key,
			"error", err,
		)
	}
}

// retryForever calls fn with jittered exponential backoff until it succeeds or
// ctx is cancelled.
func (w *worker) retryForever(ctx context.Context, fn func() error, notify func(error, int)) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn()
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		NotifyFunc:  notify,
		Attempts:    -1,
		Delay:       w.opts.RetryBaseDelay,
		MaxDelay:    w.opts.RetryMaxDelay,
		BackoffFunc: retry.ExpBackoff(w.opts.RetryBaseDelay, w.opts.RetryMaxDelay, 2.0, true),
		Clock:       w.opts.Clock,
		Stop:        ctx.Done(),
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	if err != nil {
		return ctx.Err()
	}
	return nil
}

// backoff returns the pause before batch attempt n+1.
func (w *worker) backoff(attempt int) time.Duration {
	d := w.opts.RetryBaseDelay << (attempt - 1)
	if d <= 0 || d > w.opts.RetryMaxDelay {
		return w.opts.RetryMaxDelay
	}
	return d
}

// sleep waits for d and reports false when ctx was cancelled first.
func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.opts.Clock.After(d):
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
