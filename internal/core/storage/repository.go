package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/google/uuid"
)

var (
	// ErrDuplicate is returned when a change record with the same source_key already exists.
	ErrDuplicate = errors.New("record already exists")

	// ErrNotFound is returned when a view row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by a conditional write whose expected concurrency
	// token no longer matches the stored row.
	ErrConflict = errors.New("concurrency token mismatch")
)

// Dead letter kinds.
const (
	DeadLetterPoison      = "poison"
	DeadLetterWriteFailed = "write_failed"
	DeadLetterCopyFailed  = "copy_failed"
)

// DeadLetter records work the pipeline gave up on. Batch identity is the
// partition plus the token range of the batch.
type DeadLetter struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	PartitionID int                    `json:"partition_id"`
	FirstToken  int64                  `json:"first_token"`
	LastToken   int64                  `json:"last_token"`
	SourceKey   string                 `json:"source_key,omitempty"`
	View        string                 `json:"view,omitempty"`
	Key         string                 `json:"key,omitempty"`
	Reason      string                 `json:"reason"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// DeadLetterID derives a stable dead letter ID from the entry's kind, partition,
// sequence token and subject. Backends insert an entry only when its ID is
// absent, so a replayed batch does not report the same work twice.
func DeadLetterID(kind string, partitionID int, token int64, subject string) string {
	name := fmt.Sprintf("%s/%d/%d/%s", kind, partitionID, token, subject)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// RekeyedRecord is a change record copied to the destination keyed by a payload field.
type RekeyedRecord struct {
	PartitionKey string          `json:"partition_key"`
	SourceKey    string          `json:"source_key"`
	Record       v1.ChangeRecord `json:"record"`
}

// ChangeSource delivers an ordered, at-least-once stream of change records per partition.
type ChangeSource interface {
	// Pull returns up to limit records of partitionID with a sequence token greater
	// than afterToken, in token order. afterToken=0 means "from the beginning".
	Pull(ctx context.Context, partitionID int, afterToken int64, limit int) ([]*v1.ChangeRecord, error)
}

// RecordStore appends change records to the source dataset.
type RecordStore interface {
	// Append stores rec, assigning its SequenceToken and IngestedAt.
	// Returns ErrDuplicate when the source_key was already appended.
	Append(ctx context.Context, rec *v1.ChangeRecord) error
}

// ViewStore persists view rows with point reads and compare-and-swap writes.
type ViewStore interface {
	// GetRow returns the row for key or ErrNotFound.
	GetRow(ctx context.Context, key aggregation.AggregationKey) (aggregation.ViewRow, error)

	// PutRow writes row if the stored concurrency token equals expectedToken.
	// An empty expectedToken means the row must not exist yet. Returns the new
	// token, or ErrConflict.
	PutRow(ctx context.Context, row aggregation.ViewRow, expectedToken string) (string, error)

	// ListRows returns the rows of one view ordered by key.
	ListRows(ctx context.Context, view string) ([]aggregation.ViewRow, error)
}

// CheckpointStore tracks the last durably processed position per partition.
type CheckpointStore interface {
	// GetCheckpoint returns the committed token; ok is false on cold start.
	GetCheckpoint(ctx context.Context, partitionID int) (token int64, ok bool, err error)

	// AdvanceCheckpoint moves the partition forward to token. A token lower than
	// or equal to the stored one is a no-op, not an error.
	AdvanceCheckpoint(ctx context.Context, partitionID int, token int64) error

	// ListCheckpoints returns every stored entry ordered by partition.
	ListCheckpoints(ctx context.Context) ([]aggregation.CheckpointEntry, error)
}

// DeadLetterStore keeps the work the pipeline gave up on for operator inspection.
type DeadLetterStore interface {
	// ReportDeadLetter stores dl unless an entry with the same ID exists.
	ReportDeadLetter(ctx context.Context, dl DeadLetter) error

	// ListDeadLetters returns the most recent entries first.
	ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
}

// MigrationStore holds change records copied under a new partition key.
type MigrationStore interface {
	// CopyRecords inserts records that are not present yet and returns how many were new.
	CopyRecords(ctx context.Context, records []RekeyedRecord) (int, error)

	// ListByKey returns the records copied under partitionKey ordered by source_key.
	ListByKey(ctx context.Context, partitionKey string, limit int) ([]RekeyedRecord, error)
}

// Store is a complete backend for the pipeline.
type Store interface {
	ChangeSource
	RecordStore
	ViewStore
	CheckpointStore
	DeadLetterStore
	MigrationStore
	Close() error
}
