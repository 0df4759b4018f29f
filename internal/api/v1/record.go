package v1

import (
	"fmt"
	"time"
)

// ChangeRecord is one mutation observed on the source dataset.
// It separates the "Envelope" (position in the change feed) from the "Letter" (Payload).
type ChangeRecord struct {
	// --- Feed Attributes (The Envelope) ---

	// SourceKey identifies the source document. It is unique within the source dataset
	// and is the producer's idempotency key on ingestion.
	SourceKey string `json:"source_key"`

	// PartitionID is the source partition the record was delivered on.
	// Clients may supply it on ingestion, where it is checked against the
	// partition count; otherwise it is derived from SourceKey.
	PartitionID int `json:"partition_id"`

	// SequenceToken is strictly increasing within one PartitionID.
	// Set by the change source (BIGSERIAL / log offset), never by clients.
	SequenceToken int64 `json:"sequence_token"`

	// OccurredAt is when the mutation happened on the producer side.
	OccurredAt time.Time `json:"occurred_at"`

	// IngestedAt is when the change source accepted the record.
	IngestedAt time.Time `json:"ingested_at"`

	// --- User Payload (The Letter) ---

	// Payload is the document body, e.g. a cart action. It is validated against the
	// payload schema at the aggregation boundary, not at ingestion.
	Payload map[string]interface{} `json:"payload"`
}

// Validate ensures the record carries the envelope fields every consumer relies on.
func (r *ChangeRecord) Validate() error {
	if r.SourceKey == "" {
		return fmt.Errorf("source_key is required")
	}

	if r.Payload == nil {
		return fmt.Errorf("payload is required")
	}

	if r.PartitionID < 0 {
		return fmt.Errorf("partition_id must be >= 0")
	}

	return nil
}
