package pipeline

import (
	"time"

	"github.com/aevon-lab/matview/internal/core/partition"
	"github.com/juju/clock"
)

const (
	defaultBatchSize        = 500
	defaultPollInterval     = time.Second
	defaultMaxBatchAttempts = 3
	defaultRetryBaseDelay   = 100 * time.Millisecond
	defaultRetryMaxDelay    = 10 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
)

// Options controls the coordinator.
type Options struct {
	// Partitions lists the source partitions to consume, one worker each.
	Partitions []int

	BatchSize    int
	PollInterval time.Duration

	// MaxBatchAttempts bounds how often a batch with uncommitted keys is re-folded
	// and re-written before its failed keys are dead-lettered.
	MaxBatchAttempts int

	// RetryBaseDelay and RetryMaxDelay shape the backoff of fetch, batch and
	// checkpoint retries.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// ShutdownTimeout bounds the best-effort checkpoint after cancellation.
	ShutdownTimeout time.Duration

	Clock clock.Clock
}

func (o Options) normalized() Options {
	n := o
	if len(n.Partitions) == 0 {
		n.Partitions = partition.IDs(partition.DefaultCount)
	}
	if n.BatchSize <= 0 {
		n.BatchSize = defaultBatchSize
	}
	if n.PollInterval <= 0 {
		n.PollInterval = defaultPollInterval
	}
	if n.MaxBatchAttempts <= 0 {
		n.MaxBatchAttempts = defaultMaxBatchAttempts
	}
	if n.RetryBaseDelay <= 0 {
		n.RetryBaseDelay = defaultRetryBaseDelay
	}
	if n.RetryMaxDelay < n.RetryBaseDelay {
		n.RetryMaxDelay = max(defaultRetryMaxDelay, n.RetryBaseDelay)
	}
	if n.ShutdownTimeout <= 0 {
		n.ShutdownTimeout = defaultShutdownTimeout
	}
	if n.Clock == nil {
		n.Clock = clock.WallClock
	}
	return n
}
