// Package badger is the embedded storage backend: the change log, view rows,
// checkpoints, dead letters and re-keyed records live in one BadgerDB.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// sequenceBandwidth is how many tokens one sequence lease reserves.
const sequenceBandwidth = 1000

// Key prefixes. Components are separated by 0x00 so user values cannot collide.
var (
	prefixRecord     = []byte("rec\x00")
	prefixSourceKey  = []byte("src\x00")
	prefixRow        = []byte("row\x00")
	prefixCheckpoint = []byte("ckpt\x00")
	prefixDeadLetter = []byte("dl\x00")
	prefixDeadID     = []byte("dlid\x00")
	prefixRekeyed    = []byte("rk\x00")
	keySequence      = []byte("meta\x00seq")
)

// Store implements storage.Store on BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	// appendMu makes token assignment and commit one step, so a reader never
	// observes token N+1 before token N of the same partition.
	appendMu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Open opens the database at path. An empty path runs fully in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithInMemory(path == "").
		WithLogger(slogLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}

	seq, err := db.GetSequence(keySequence, sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease sequence: %w", err)
	}

	slog.Info("[Badger] Store opened", "path", path, "in_memory", path == "")
	return &Store{db: db, seq: seq}, nil
}

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	var firstErr error
	if err := s.seq.Release(); err != nil {
		firstErr = fmt.Errorf("failed to release sequence: %w", err)
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close badger: %w", err)
	}
	if firstErr != nil {
		return firstErr
	}
	slog.Info("[Badger] Store closed gracefully")
	return nil
}

func recordPrefix(partitionID int) []byte {
	return []byte(fmt.Sprintf("%s%08d\x00", prefixRecord, partitionID))
}

func recordKey(partitionID int, token int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", recordPrefix(partitionID), token))
}

func rowPrefix(view string) []byte {
	return []byte(string(prefixRow) + view + "\x00")
}

func rowKey(key aggregation.AggregationKey) []byte {
	return []byte(string(rowPrefix(key.View)) + key.Key)
}

func checkpointKey(partitionID int) []byte {
	return []byte(fmt.Sprintf("%s%08d", prefixCheckpoint, partitionID))
}

func rekeyedPrefix(partitionKey string) []byte {
	return []byte(string(prefixRekeyed) + partitionKey + "\x00")
}

// getJSON reads key into dst; found is false when the key is absent.
func getJSON(txn *badger.Txn, key []byte, dst interface{}) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	return true, decodeJSON(val, dst)
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// decodeJSON keeps numbers as json.Number so prices round-trip exactly.
func decodeJSON(data []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// scanPrefix calls fn with each value under prefix, in key order (or reverse).
func scanPrefix(txn *badger.Txn, prefix []byte, reverse bool, fn func(val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		more, err := fn(val)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// Append stores rec and assigns the next sequence token.
func (s *Store) Append(_ context.Context, rec *v1.ChangeRecord) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("append: next sequence: %w", err)
	}

	stored := *rec
	stored.SequenceToken = int64(next) + 1
	stored.IngestedAt = time.Now().UTC()
	if stored.OccurredAt.IsZero() {
		stored.OccurredAt = stored.IngestedAt
	}

	srcKey := append(append([]byte{}, prefixSourceKey...), rec.SourceKey...)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(srcKey); err == nil {
			return storage.ErrDuplicate
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, recordKey(stored.PartitionID, stored.SequenceToken), stored); err != nil {
			return err
		}
		return txn.Set(srcKey, []byte(fmt.Sprint(stored.SequenceToken)))
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return err
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.SourceKey, err)
	}

	*rec = stored
	return nil
}

// Pull returns up to limit records of partitionID after afterToken.
func (s *Store) Pull(ctx context.Context, partitionID int, afterToken int64, limit int) ([]*v1.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*v1.ChangeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := recordPrefix(partitionID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordKey(partitionID, afterToken+1)); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec v1.ChangeRecord
			if err := decodeJSON(val, &rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pull partition %d: %w", partitionID, err)
	}
	return out, nil
}

// GetRow returns the row for key or storage.ErrNotFound.
func (s *Store) GetRow(_ context.Context, key aggregation.AggregationKey) (aggregation.ViewRow, error) {
	var row aggregation.ViewRow
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, rowKey(key), &row)
		return err
	})
	if err != nil {
		return aggregation.ViewRow{}, fmt.Errorf("get view row %s: %w", key, err)
	}
	if !found {
		return aggregation.ViewRow{}, storage.ErrNotFound
	}
	return row, nil
}

// PutRow writes row if the stored token equals expectedToken ("" = create).
// Badger's serializable transactions turn a concurrent writer into ErrConflict.
func (s *Store) PutRow(_ context.Context, row aggregation.ViewRow, expectedToken string) (string, error) {
	key := rowKey(row.AggregationKey())
	token := uuid.NewString()

	err := s.db.Update(func(txn *badger.Txn) error {
		var current aggregation.ViewRow
		found, err := getJSON(txn, key, &current)
		if err != nil {
			return err
		}
		if found != (expectedToken != "") || current.ConcurrencyToken != expectedToken {
			return storage.ErrConflict
		}

		row.ConcurrencyToken = token
		row.UpdatedAt = time.Now().UTC()
		return setJSON(txn, key, row)
	})
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, badger.ErrConflict) {
		return "", storage.ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("put view row %s/%s: %w", row.View, row.Key, err)
	}
	return token, nil
}

// ListRows returns the rows of one view ordered by key.
func (s *Store) ListRows(_ context.Context, view string) ([]aggregation.ViewRow, error) {
	var out []aggregation.ViewRow
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, rowPrefix(view), false, func(val []byte) (bool, error) {
			var row aggregation.ViewRow
			if err := decodeJSON(val, &row); err != nil {
				return false, err
			}
			out = append(out, row)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list view rows %s: %w", view, err)
	}
	return out, nil
}

// GetCheckpoint returns the committed token of a partition.
func (s *Store) GetCheckpoint(_ context.Context, partitionID int) (int64, bool, error) {
	var entry aggregation.CheckpointEntry
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, checkpointKey(partitionID), &entry)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint %d: %w", partitionID, err)
	}
	return entry.LastCommittedSequenceToken, found, nil
}

// AdvanceCheckpoint moves a partition forward; lower or equal tokens are ignored.
func (s *Store) AdvanceCheckpoint(_ context.Context, partitionID int, token int64) error {
	key := checkpointKey(partitionID)
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			var current aggregation.CheckpointEntry
			found, err := getJSON(txn, key, &current)
			if err != nil {
				return err
			}
			if found && token <= current.LastCommittedSequenceToken {
				return nil
			}
			return setJSON(txn, key, aggregation.CheckpointEntry{
				PartitionID:                partitionID,
				LastCommittedSequenceToken: token,
				UpdatedAt:                  time.Now().UTC(),
			})
		})
		// A concurrent advance of the same partition re-evaluates against the winner.
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("advance checkpoint %d: %w", partitionID, err)
		}
		return nil
	}
}

// ListCheckpoints returns every entry ordered by partition.
func (s *Store) ListCheckpoints(_ context.Context) ([]aggregation.CheckpointEntry, error) {
	var out []aggregation.CheckpointEntry
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixCheckpoint, false, func(val []byte) (bool, error) {
			var e aggregation.CheckpointEntry
			if err := decodeJSON(val, &e); err != nil {
				return false, err
			}
			out = append(out, e)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
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
	key := []byte(fmt.Sprintf("%s%020d\x00%s", prefixDeadLetter, dl.CreatedAt.UnixNano(), dl.ID))
	idKey := append(append([]byte{}, prefixDeadID...), dl.ID...)

	if err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(idKey); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(idKey, key); err != nil {
			return err
		}
		return setJSON(txn, key, dl)
	}); err != nil {
		return fmt.Errorf("report dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the most recent entries first.
func (s *Store) ListDeadLetters(_ context.Context, limit int) ([]storage.DeadLetter, error) {
	var out []storage.DeadLetter
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixDeadLetter, true, func(val []byte) (bool, error) {
			var dl storage.DeadLetter
			if err := decodeJSON(val, &dl); err != nil {
				return false, err
			}
			out = append(out, dl)
			return len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}

// CopyRecords inserts the records not copied yet in one transaction.
func (s *Store) CopyRecords(_ context.Context, records []storage.RekeyedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var inserted int
	err := s.db.Update(func(txn *badger.Txn) error {
		inserted = 0
		for _, r := range records {
			key := append(rekeyedPrefix(r.PartitionKey), r.SourceKey...)
			if _, err := txn.Get(key); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := setJSON(txn, key, r); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("copy records: %w", err)
	}
	return inserted, nil
}

// ListByKey returns the records copied under partitionKey ordered by source_key.
func (s *Store) ListByKey(_ context.Context, partitionKey string, limit int) ([]storage.RekeyedRecord, error) {
	var out []storage.RekeyedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, rekeyedPrefix(partitionKey), false, func(val []byte) (bool, error) {
			var r storage.RekeyedRecord
			if err := decodeJSON(val, &r); err != nil {
				return false, err
			}
			out = append(out, r)
			return len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list records by key: %w", err)
	}
	return out, nil
}

// slogLogger routes badger's internal logging through slog.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...interface{}) {
	slog.Error("[Badger] " + fmt.Sprintf(format, args...))
}

func (slogLogger) Warningf(format string, args ...interface{}) {
	slog.Warn("[Badger] " + fmt.Sprintf(format, args...))
}

func (slogLogger) Infof(format string, args ...interface{}) {
	slog.Debug("[Badger] " + fmt.Sprintf(format, args...))
}

func (slogLogger) Debugf(format string, args ...interface{}) {
	slog.Debug("[Badger] " + fmt.Sprintf(format, args...))
}
