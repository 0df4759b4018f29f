// Package migration copies change records to a destination keyed by a payload field.
package migration

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
)

// Sink re-keys every valid record of a batch by KeyField and copies it to the
// migration store. Records already copied are left untouched, so a redelivered
// batch is harmless.
type Sink struct {
	store     storage.MigrationStore
	keyField  string
	validator aggregation.PayloadValidator
}

// NewSink creates a sink. validator may be nil to copy every record that carries keyField.
func NewSink(store storage.MigrationStore, keyField string, validator aggregation.PayloadValidator) *Sink {
	return &Sink{store: store, keyField: keyField, validator: validator}
}

// Copy writes the batch to the destination. Invalid records are skipped; the
// aggregator reports them as poison.
func (s *Sink) Copy(ctx context.Context, batch []*v1.ChangeRecord) error {
	out := make([]storage.RekeyedRecord, 0, len(batch))
	skipped := 0
	for _, rec := range batch {
		if rec == nil {
			continue
		}
		if s.validator != nil {
			if err := s.validator.Validate(rec.Payload); err != nil {
				skipped++
				continue
			}
		}
		key, err := aggregation.KeyString(rec.Payload[s.keyField])
		if err != nil {
			skipped++
			continue
		}
		out = append(out, storage.RekeyedRecord{
			PartitionKey: key,
			SourceKey:    rec.SourceKey,
			Record:       *rec,
		})
	}
	if len(out) == 0 {
		return nil
	}

	inserted, err := s.store.CopyRecords(ctx, out)
	if err != nil {
		return fmt.Errorf("copy %d records by %s: %w", len(out), s.keyField, err)
	}

	slog.Debug("[Migration] Batch copied",
		"key_field", s.keyField,
		"records", len(out),
		"inserted", inserted,
		"skipped", skipped,
	)
	return nil
}
