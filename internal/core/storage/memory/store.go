// Package memory is an in-process storage backend used by tests and local demos.
// It honors the same contracts as the durable backends: CAS on view rows,
// monotonic checkpoints and strictly increasing tokens per partition.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/google/uuid"
)

// Store implements storage.Store in memory.
type Store struct {
	mu sync.Mutex

	nextToken   int64
	records     map[int][]v1.ChangeRecord
	sourceKeys  map[string]struct{}
	rows        map[aggregation.AggregationKey]aggregation.ViewRow
	checkpoints map[int]aggregation.CheckpointEntry
	deadLetters []storage.DeadLetter
	rekeyed     map[string]map[string]storage.RekeyedRecord
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		records:     make(map[int][]v1.ChangeRecord),
		sourceKeys:  make(map[string]struct{}),
		rows:        make(map[aggregation.AggregationKey]aggregation.ViewRow),
		checkpoints: make(map[int]aggregation.CheckpointEntry),
		rekeyed:     make(map[string]map[string]storage.RekeyedRecord),
	}
}

// Append stores rec and assigns the next sequence token.
func (s *Store) Append(_ context.Context, rec *v1.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.sourceKeys[rec.SourceKey]; dup {
		return storage.ErrDuplicate
	}
	s.nextToken++
	rec.SequenceToken = s.nextToken
	rec.IngestedAt = time.Now().UTC()
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = rec.IngestedAt
	}

	s.sourceKeys[rec.SourceKey] = struct{}{}
	s.records[rec.PartitionID] = append(s.records[rec.PartitionID], *rec)
	return nil
}

// Pull returns up to limit records of partitionID after afterToken.
func (s *Store) Pull(ctx context.Context, partitionID int, afterToken int64, limit int) ([]*v1.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.records[partitionID]
	i := sort.Search(len(log), func(i int) bool { return log[i].SequenceToken > afterToken })

	var out []*v1.ChangeRecord
	for ; i < len(log) && len(out) < limit; i++ {
		rec := log[i]
		out = append(out, &rec)
	}
	return out, nil
}

// GetRow returns a copy of the row for key or storage.ErrNotFound.
func (s *Store) GetRow(ctx context.Context, key aggregation.AggregationKey) (aggregation.ViewRow, error) {
	if err := ctx.Err(); err != nil {
		return aggregation.ViewRow{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key]
	if !ok {
		return aggregation.ViewRow{}, storage.ErrNotFound
	}
	return cloneRow(row), nil
}

// PutRow writes row if the stored token equals expectedToken ("" = create).
func (s *Store) PutRow(ctx context.Context, row aggregation.ViewRow, expectedToken string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := row.AggregationKey()
	current, exists := s.rows[key]
	switch {
	case expectedToken == "" && exists:
		return "", storage.ErrConflict
	case expectedToken != "" && (!exists || current.ConcurrencyToken != expectedToken):
		return "", storage.ErrConflict
	}

	row = cloneRow(row)
	row.ConcurrencyToken = uuid.NewString()
	row.UpdatedAt = time.Now().UTC()
	s.rows[key] = row
	return row.ConcurrencyToken, nil
}

// ListRows returns the rows of one view ordered by key.
func (s *Store) ListRows(_ context.Context, view string) ([]aggregation.ViewRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []aggregation.ViewRow
	for key, row := range s.rows {
		if key.View == view {
			out = append(out, cloneRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// GetCheckpoint returns the committed token of a partition.
func (s *Store) GetCheckpoint(ctx context.Context, partitionID int) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.checkpoints[partitionID]
	return e.LastCommittedSequenceToken, ok, nil
}

// AdvanceCheckpoint moves a partition forward; lower or equal tokens are ignored.
func (s *Store) AdvanceCheckpoint(ctx context.Context, partitionID int, token int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.checkpoints[partitionID]; ok && token <= e.LastCommittedSequenceToken {
		return nil
	}
	s.checkpoints[partitionID] = aggregation.CheckpointEntry{
		PartitionID:                partitionID,
		LastCommittedSequenceToken: token,
		UpdatedAt:                  time.Now().UTC(),
	}
	return nil
}

// ListCheckpoints returns every entry ordered by partition.
func (s *Store) ListCheckpoints(_ context.Context) ([]aggregation.CheckpointEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]aggregation.CheckpointEntry, 0, len(s.checkpoints))
	for _, e := range s.checkpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartitionID < out[j].PartitionID })
	return out, nil
}

// ReportDeadLetter stores dl, assigning ID and CreatedAt when unset. An entry
// whose ID is already stored is ignored.
func (s *Store) ReportDeadLetter(_ context.Context, dl storage.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.deadLetters {
		if existing.ID == dl.ID {
			return nil
		}
	}
	s.deadLetters = append(s.deadLetters, dl)
	return nil
}

// ListDeadLetters returns the most recent entries first.
func (s *Store) ListDeadLetters(_ context.Context, limit int) ([]storage.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.DeadLetter
	for i := len(s.deadLetters) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.deadLetters[i])
	}
	return out, nil
}

// CopyRecords inserts the records not copied yet.
func (s *Store) CopyRecords(ctx context.Context, records []storage.RekeyedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		bucket, ok := s.rekeyed[r.PartitionKey]
		if !ok {
			bucket = make(map[string]storage.RekeyedRecord)
			s.rekeyed[r.PartitionKey] = bucket
		}
		if _, exists := bucket[r.SourceKey]; exists {
			continue
		}
		bucket[r.SourceKey] = r
		inserted++
	}
	return inserted, nil
}

// ListByKey returns the records copied under partitionKey ordered by source_key.
func (s *Store) ListByKey(_ context.Context, partitionKey string, limit int) ([]storage.RekeyedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.rekeyed[partitionKey]
	out := make([]storage.RekeyedRecord, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceKey < out[j].SourceKey })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cloneRow(r aggregation.ViewRow) aggregation.ViewRow {
	w := make(map[int]int64, len(r.Watermarks))
	for k, v := range r.Watermarks {
		w[k] = v
	}
	r.Watermarks = w
	return r
}
