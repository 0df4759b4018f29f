package projection

import (
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/shopspring/decimal"
)

// rollupTotal sums every row of a view into a single value.
func rollupTotal(rows []aggregation.ViewRow) ViewTotal {
	total := ViewTotal{TotalSum: decimal.Zero}
	for _, row := range rows {
		total.Keys++
		total.Count += row.Count
		total.TotalSum = total.TotalSum.Add(row.TotalSum)
	}
	return total
}

// dataThrough maps each partition to the checkpoint the view reflects at least.
func dataThrough(entries []aggregation.CheckpointEntry) map[int]int64 {
	out := make(map[int]int64, len(entries))
	for _, e := range entries {
		out[e.PartitionID] = e.LastCommittedSequenceToken
	}
	return out
}
