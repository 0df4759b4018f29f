package aggregation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deltaOf(key AggregationKey, partition int, tokens ...int64) *PartialAggregate {
	d := NewPartialAggregate(key)
	for _, tok := range tokens {
		d.Add(partition, tok, decimal.NewFromInt(10))
	}
	return d
}

func TestPartialAggregate_Since(t *testing.T) {
	key := salesKey("CA")
	d := deltaOf(key, 0, 1, 2, 3)
	d.Add(1, 7, decimal.NewFromInt(5))

	t.Run("nil watermarks keep everything", func(t *testing.T) {
		got := d.Since(nil)
		assert.Equal(t, int64(4), got.Count)
		assert.Equal(t, "35", got.Sum.String())
	})

	t.Run("partial overlap", func(t *testing.T) {
		got := d.Since(map[int]int64{0: 2})
		assert.Equal(t, int64(2), got.Count)
		assert.Equal(t, "15", got.Sum.String())
		assert.Equal(t, map[int]TokenRange{0: {First: 3, Last: 3}, 1: {First: 7, Last: 7}}, got.Ranges)
	})

	t.Run("fully applied", func(t *testing.T) {
		got := d.Since(map[int]int64{0: 3, 1: 9})
		assert.True(t, got.IsEmpty())
	})
}

func TestViewRow_Merge(t *testing.T) {
	key := salesKey("CA")

	t.Run("fresh row", func(t *testing.T) {
		row, changed := EmptyRow(key).Merge(deltaOf(key, 0, 1, 2), true)
		require.True(t, changed)
		assert.Equal(t, int64(2), row.Count)
		assert.Equal(t, "20", row.TotalSum.String())
		assert.Equal(t, map[int]int64{0: 2}, row.Watermarks)
	})

	t.Run("replay is skipped with dedup", func(t *testing.T) {
		row, _ := EmptyRow(key).Merge(deltaOf(key, 0, 1, 2), true)
		again, changed := row.Merge(deltaOf(key, 0, 1, 2), true)
		assert.False(t, changed)
		assert.Equal(t, row, again)
	})

	t.Run("replay double counts without dedup", func(t *testing.T) {
		row, _ := EmptyRow(key).Merge(deltaOf(key, 0, 1), false)
		again, changed := row.Merge(deltaOf(key, 0, 1), false)
		require.True(t, changed)
		assert.Equal(t, int64(2), again.Count)
		assert.Equal(t, "20", again.TotalSum.String())
	})

	t.Run("boundary shift applies only new records", func(t *testing.T) {
		row, _ := EmptyRow(key).Merge(deltaOf(key, 0, 1, 2), true)
		next, changed := row.Merge(deltaOf(key, 0, 2, 3, 4), true)
		require.True(t, changed)
		assert.Equal(t, int64(4), next.Count)
		assert.Equal(t, map[int]int64{0: 4}, next.Watermarks)
	})

	t.Run("merge does not mutate source watermarks", func(t *testing.T) {
		row, _ := EmptyRow(key).Merge(deltaOf(key, 0, 1), true)
		_, _ = row.Merge(deltaOf(key, 1, 5), true)
		assert.Equal(t, map[int]int64{0: 1}, row.Watermarks)
	})
}

func TestFoldResult_KeysSorted(t *testing.T) {
	res := FoldResult{Deltas: map[AggregationKey]*PartialAggregate{
		{View: "b", Key: "a"}: nil,
		{View: "a", Key: "z"}: nil,
		{View: "a", Key: "c"}: nil,
	}}
	assert.Equal(t, []AggregationKey{{View: "a", Key: "c"}, {View: "a", Key: "z"}, {View: "b", Key: "a"}}, res.Keys())
}
