package aggregation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AggregationKey identifies one view row: the view it belongs to and the
// grouping value extracted from the payload (e.g. a buyer region).
type AggregationKey struct {
	View string
	Key  string
}

func (k AggregationKey) String() string {
	return k.View + "/" + k.Key
}

// TokenRange is the span of sequence tokens a partial aggregate covers on one partition.
type TokenRange struct {
	First int64 `json:"first"`
	Last  int64 `json:"last"`
}

// contribution is a single record folded into a PartialAggregate.
type contribution struct {
	partitionID int
	token       int64
	value       decimal.Decimal
}

// PartialAggregate is the per-key delta produced by folding one batch.
// It is created empty, folded per record, handed to the view writer and discarded.
type PartialAggregate struct {
	Key    AggregationKey
	Count  int64
	Sum    decimal.Decimal
	Ranges map[int]TokenRange

	contributions []contribution
}

// NewPartialAggregate returns an empty delta for key.
func NewPartialAggregate(key AggregationKey) *PartialAggregate {
	return &PartialAggregate{
		Key:    key,
		Sum:    decimal.Zero,
		Ranges: make(map[int]TokenRange),
	}
}

// Add folds one record at (partitionID, token) carrying value into the delta.
func (p *PartialAggregate) Add(partitionID int, token int64, value decimal.Decimal) {
	p.Count++
	p.Sum = p.Sum.Add(value)
	p.contributions = append(p.contributions, contribution{partitionID: partitionID, token: token, value: value})

	r, ok := p.Ranges[partitionID]
	if !ok {
		p.Ranges[partitionID] = TokenRange{First: token, Last: token}
		return
	}
	if token < r.First {
		r.First = token
	}
	if token > r.Last {
		r.Last = token
	}
	p.Ranges[partitionID] = r
}

// IsEmpty reports whether the delta carries no records.
func (p *PartialAggregate) IsEmpty() bool {
	return p == nil || p.Count == 0
}

// Since returns the part of the delta not yet covered by watermarks, a map of the
// highest sequence token already applied per partition. Partitions missing from
// watermarks contribute in full.
func (p *PartialAggregate) Since(watermarks map[int]int64) *PartialAggregate {
	out := NewPartialAggregate(p.Key)
	for _, c := range p.contributions {
		if w, ok := watermarks[c.partitionID]; ok && c.token <= w {
			continue
		}
		out.Add(c.partitionID, c.token, c.value)
	}
	return out
}

// Positions returns the last token of the delta on each partition.
func (p *PartialAggregate) Positions() map[int]int64 {
	out := make(map[int]int64, len(p.Ranges))
	for id, r := range p.Ranges {
		out[id] = r.Last
	}
	return out
}

// sortContributions orders contributions by position so two folds of the same
// records compare equal regardless of input order.
func (p *PartialAggregate) sortContributions() {
	sort.Slice(p.contributions, func(i, j int) bool {
		a, b := p.contributions[i], p.contributions[j]
		if a.partitionID != b.partitionID {
			return a.partitionID < b.partitionID
		}
		return a.token < b.token
	})
}

// ViewRow is the persisted aggregate for one key of one view.
// Count and TotalSum only change through the view writer's conditional write.
type ViewRow struct {
	View     string          `json:"view"`
	Key      string          `json:"key"`
	Count    int64           `json:"count"`
	TotalSum decimal.Decimal `json:"total_sum"`

	// Watermarks holds, per partition, the highest sequence token already folded
	// into this row. Used to skip redelivered records.
	Watermarks map[int]int64 `json:"watermarks,omitempty"`

	// ConcurrencyToken is opaque and reassigned by the store on every write.
	// Empty means the row does not exist yet.
	ConcurrencyToken string    `json:"concurrency_token"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EmptyRow is the zero row used when a key has never been written.
func EmptyRow(key AggregationKey) ViewRow {
	return ViewRow{
		View:       key.View,
		Key:        key.Key,
		TotalSum:   decimal.Zero,
		Watermarks: map[int]int64{},
	}
}

// AggregationKey returns the key this row is stored under.
func (r ViewRow) AggregationKey() AggregationKey {
	return AggregationKey{View: r.View, Key: r.Key}
}

// Merge folds delta into a copy of the row. With dedup enabled the records
// already covered by the row's watermarks are skipped. The returned bool is
// false when nothing remains to write.
func (r ViewRow) Merge(delta *PartialAggregate, dedup bool) (ViewRow, bool) {
	if dedup {
		delta = delta.Since(r.Watermarks)
	}
	if delta.IsEmpty() {
		return r, false
	}

	out := r
	out.Count = r.Count + delta.Count
	out.TotalSum = r.TotalSum.Add(delta.Sum)
	out.Watermarks = make(map[int]int64, len(r.Watermarks)+len(delta.Ranges))
	for id, w := range r.Watermarks {
		out.Watermarks[id] = w
	}
	for id, last := range delta.Positions() {
		if last > out.Watermarks[id] {
			out.Watermarks[id] = last
		}
	}
	return out, true
}

// CheckpointEntry is the last durably processed position of one source partition.
type CheckpointEntry struct {
	PartitionID                int       `json:"partition_id"`
	LastCommittedSequenceToken int64     `json:"last_committed_sequence_token"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// PoisonRecord is a record excluded from aggregation because its payload is malformed.
type PoisonRecord struct {
	SourceKey     string                 `json:"source_key"`
	PartitionID   int                    `json:"partition_id"`
	SequenceToken int64                  `json:"sequence_token"`
	Reason        string                 `json:"reason"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// FoldResult is the output of folding one batch.
type FoldResult struct {
	Deltas map[AggregationKey]*PartialAggregate
	Poison []PoisonRecord

	// Eligible counts records folded into at least one view; Ignored counts valid
	// records no view selects (e.g. Viewed actions).
	Eligible int
	Ignored  int

	// Positions holds the highest token seen per partition, including ignored and
	// poison records. This is the position to checkpoint once the deltas commit.
	Positions map[int]int64
}

// Keys returns the delta keys in a stable order.
func (r FoldResult) Keys() []AggregationKey {
	keys := make([]AggregationKey, 0, len(r.Deltas))
	for k := range r.Deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].View != keys[j].View {
			return keys[i].View < keys[j].View
		}
		return keys[i].Key < keys[j].Key
	})
	return keys
}
