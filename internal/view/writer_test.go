package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/core/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore injects conflicts or errors into PutRow for selected keys.
type flakyStore struct {
	*memory.Store

	mu        sync.Mutex
	conflicts map[string]int // remaining conflicts per key
	failWith  error
	puts      int
}

func (s *flakyStore) PutRow(ctx context.Context, row aggregation.ViewRow, expected string) (string, error) {
	s.mu.Lock()
	s.puts++
	if s.failWith != nil {
		s.mu.Unlock()
		return "", s.failWith
	}
	if n := s.conflicts[row.Key]; n != 0 {
		if n > 0 {
			s.conflicts[row.Key] = n - 1
		}
		s.mu.Unlock()
		return "", storage.ErrConflict
	}
	s.mu.Unlock()
	return s.Store.PutRow(ctx, row, expected)
}

func testOptions(dedup bool) Options {
	return Options{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Concurrency: 4,
		Dedup:       dedup,
	}
}

func key(region string) aggregation.AggregationKey {
	return aggregation.AggregationKey{View: "sales_by_region", Key: region}
}

func delta(region string, partition int, tokens []int64, prices ...string) *aggregation.PartialAggregate {
	d := aggregation.NewPartialAggregate(key(region))
	for i, p := range prices {
		d.Add(partition, tokens[i], decimal.RequireFromString(p))
	}
	return d
}

func deltas(ds ...*aggregation.PartialAggregate) map[aggregation.AggregationKey]*aggregation.PartialAggregate {
	out := make(map[aggregation.AggregationKey]*aggregation.PartialAggregate, len(ds))
	for _, d := range ds {
		out[d.Key] = d
	}
	return out
}

func requireRow(t *testing.T, s storage.ViewStore, region string, count int64, sum string) aggregation.ViewRow {
	t.Helper()
	row, err := s.GetRow(context.Background(), key(region))
	require.NoError(t, err)
	assert.Equal(t, count, row.Count, "count for %s", region)
	assert.True(t, decimal.RequireFromString(sum).Equal(row.TotalSum), "sum for %s: got %s", region, row.TotalSum)
	return row
}

func TestWriter_CreatesAndUpdatesRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewWriter(store, testOptions(true))

	res := w.Apply(ctx, deltas(
		delta("CA", 0, []int64{1}, "10"),
		delta("NY", 0, []int64{3}, "20"),
	))
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Equal(t, Committed, r.Outcome)
		assert.NotEmpty(t, r.Token)
		assert.Equal(t, 1, r.Attempts)
	}

	res = w.Apply(ctx, deltas(delta("CA", 0, []int64{7, 9}, "2.50", "0.25")))
	assert.Equal(t, Committed, res[key("CA")].Outcome)

	row := requireRow(t, store, "CA", 3, "12.75")
	assert.Equal(t, map[int]int64{0: 9}, row.Watermarks)
	assert.Equal(t, res[key("CA")].Token, row.ConcurrencyToken)
	requireRow(t, store, "NY", 1, "20")
}

func TestWriter_ConflictOnFirstAttemptRetries(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New(), conflicts: map[string]int{"CA": 1}}
	w := NewWriter(store, testOptions(true))

	first := w.Apply(ctx, deltas(delta("NY", 0, []int64{1}, "1")))
	require.Equal(t, Committed, first[key("NY")].Outcome)

	res := w.Apply(ctx, deltas(delta("CA", 0, []int64{2}, "10")))

	got := res[key("CA")]
	assert.Equal(t, Committed, got.Outcome)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 1, got.Conflicts)
	assert.NoError(t, got.Err)

	row := requireRow(t, store.Store, "CA", 1, "10")
	assert.Equal(t, got.Token, row.ConcurrencyToken)
	assert.NotEqual(t, first[key("NY")].Token, got.Token)
}

func TestWriter_ExhaustedConflictsFail(t *testing.T) {
	store := &flakyStore{Store: memory.New(), conflicts: map[string]int{"CA": -1}}
	w := NewWriter(store, testOptions(true))

	res := w.Apply(context.Background(), deltas(
		delta("CA", 0, []int64{1}, "10"),
		delta("NY", 0, []int64{2}, "20"),
	))

	ca := res[key("CA")]
	assert.Equal(t, Failed, ca.Outcome)
	assert.Equal(t, 4, ca.Attempts)
	assert.Equal(t, 4, ca.Conflicts)
	assert.ErrorIs(t, ca.Err, storage.ErrConflict)
	assert.Contains(t, ca.Err.Error(), "retries exhausted")

	assert.Equal(t, Committed, res[key("NY")].Outcome)
	_, err := store.GetRow(context.Background(), key("CA"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriter_StoreErrorFails(t *testing.T) {
	boom := errors.New("connection refused")
	store := &flakyStore{Store: memory.New(), failWith: boom}
	w := NewWriter(store, testOptions(true))

	res := w.Apply(context.Background(), deltas(delta("CA", 0, []int64{1}, "10")))

	assert.Equal(t, Failed, res[key("CA")].Outcome)
	assert.ErrorIs(t, res[key("CA")].Err, boom)
}

func TestWriter_CancelledBeforeStart(t *testing.T) {
	store := memory.New()
	w := NewWriter(store, testOptions(true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := w.Apply(ctx, deltas(delta("CA", 0, []int64{1}, "10")))
	assert.Equal(t, Failed, res[key("CA")].Outcome)
	assert.ErrorIs(t, res[key("CA")].Err, context.Canceled)
	assert.Equal(t, 0, res[key("CA")].Attempts)
}

func TestWriter_ReplayWithoutDedupDoubleCounts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewWriter(store, testOptions(false))
	batch := func() map[aggregation.AggregationKey]*aggregation.PartialAggregate {
		return deltas(delta("CA", 0, []int64{1}, "10"))
	}

	w.Apply(ctx, batch())
	w.Apply(ctx, batch())

	requireRow(t, store, "CA", 2, "20")
}

func TestWriter_ReplayWithDedupIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewWriter(store, testOptions(true))

	first := w.Apply(ctx, deltas(delta("CA", 0, []int64{1, 2}, "10", "5")))
	replay := w.Apply(ctx, deltas(delta("CA", 0, []int64{1, 2, 3}, "10", "5", "1")))

	assert.False(t, first[key("CA")].AlreadyApplied)
	assert.False(t, replay[key("CA")].AlreadyApplied)
	requireRow(t, store, "CA", 3, "16")

	again := w.Apply(ctx, deltas(delta("CA", 0, []int64{2, 3}, "5", "1")))
	assert.Equal(t, Committed, again[key("CA")].Outcome)
	assert.True(t, again[key("CA")].AlreadyApplied)
	row := requireRow(t, store, "CA", 3, "16")
	assert.Equal(t, row.ConcurrencyToken, again[key("CA")].Token)
}

func TestWriter_BatchBoundariesDoNotMatter(t *testing.T) {
	ctx := context.Background()
	prices := []string{"1.10", "2.20", "3.30", "4.40", "5.50", "6.60", "7.70"}

	for _, size := range []int{1, 2, 3, 7} {
		store := memory.New()
		w := NewWriter(store, testOptions(true))
		for start := 0; start < len(prices); start += size {
			end := start + size
			if end > len(prices) {
				end = len(prices)
			}
			d := aggregation.NewPartialAggregate(key("CA"))
			for i := start; i < end; i++ {
				d.Add(0, int64(i+1), decimal.RequireFromString(prices[i]))
			}
			res := w.Apply(ctx, deltas(d))
			require.Equal(t, Committed, res[key("CA")].Outcome)
		}
		requireRow(t, store, "CA", 7, "30.80")
	}
}

func TestWriter_ConcurrentApplyLosesNoUpdate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	opts := testOptions(true)
	opts.MaxAttempts = 200
	w := NewWriter(store, opts)

	const writers = 8
	const perWriter = 10
	var wg sync.WaitGroup
	for p := 0; p < writers; p++ {
		wg.Add(1)
		go func(partition int) {
			defer wg.Done()
			for i := 1; i <= perWriter; i++ {
				res := w.Apply(ctx, deltas(delta("CA", partition, []int64{int64(i)}, "1.5")))
				assert.Equal(t, Committed, res[key("CA")].Outcome)
			}
		}(p)
	}
	wg.Wait()

	row := requireRow(t, store, "CA", writers*perWriter, "120")
	assert.Len(t, row.Watermarks, writers)
}
