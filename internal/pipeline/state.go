package pipeline

import "time"

// State is the position of a partition worker in the batch cycle.
type State int

const (
	StateIdle State = iota
	StateFetchingBatch
	StateAggregating
	StateWriting
	StateRetrying
	StateCheckpointing
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:          "Idle",
	StateFetchingBatch: "FetchingBatch",
	StateAggregating:   "Aggregating",
	StateWriting:       "Writing",
	StateRetrying:      "Retrying",
	StateCheckpointing: "Checkpointing",
	StateStopped:       "Stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText renders the state by name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PartitionStatus is a snapshot of one worker.
type PartitionStatus struct {
	PartitionID      int       `json:"partition_id"`
	State            State     `json:"state"`
	Checkpoint       int64     `json:"checkpoint"`
	BatchesProcessed int64     `json:"batches_processed"`
	RecordsProcessed int64     `json:"records_processed"`
	PoisonDropped    int64     `json:"poison_dropped"`
	ConflictsRetried int64     `json:"conflicts_retried"`
	DeadLettered     int64     `json:"dead_lettered"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BatchReport describes one finished batch.
type BatchReport struct {
	PartitionID int
	FirstToken  int64
	LastToken   int64

	Records  int // records pulled
	Eligible int // records folded into at least one view
	Ignored  int // valid records no view selects
	Poison   int // malformed records dropped

	Keys         int // view rows touched
	Attempts     int // write attempts for the batch
	Conflicts    int // CAS conflicts retried
	DeadLettered int // keys or copies given up on

	// Committed is false when the batch was abandoned on cancellation and will
	// be reprocessed from the checkpoint.
	Committed          bool
	CheckpointAdvanced bool
	Duration           time.Duration
}
