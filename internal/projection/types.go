package projection

import (
	"time"

	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/pipeline"
	"github.com/shopspring/decimal"
)

// ViewTotal is the roll-up of every row of a view.
type ViewTotal struct {
	Keys     int             `json:"keys"`
	Count    int64           `json:"count"`
	TotalSum decimal.Decimal `json:"total_sum"`
}

// ViewResponse lists the rows of one view.
type ViewResponse struct {
	View        string                `json:"view"`
	KeyField    string                `json:"key_field"`
	ValueField  string                `json:"value_field"`
	Actions     []string              `json:"actions,omitempty"`
	Rows        []aggregation.ViewRow `json:"rows"`
	Total       ViewTotal             `json:"total"`
	DataThrough map[int]int64         `json:"data_through"`
	Fingerprint string                `json:"fingerprint,omitempty"`
}

// StatusResponse is the pipeline state per partition together with the stored checkpoints.
type StatusResponse struct {
	Running     bool                          `json:"running"`
	Partitions  []pipeline.PartitionStatus    `json:"partitions"`
	Checkpoints []aggregation.CheckpointEntry `json:"checkpoints"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// DeadLetterResponse lists recent dead letters.
type DeadLetterResponse struct {
	Limit       int                  `json:"limit"`
	DeadLetters []storage.DeadLetter `json:"dead_letters"`
}

// MigratedResponse lists records copied under one partition key.
type MigratedResponse struct {
	PartitionKey string                  `json:"partition_key"`
	Records      []storage.RekeyedRecord `json:"records"`
}
