package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/matview/internal/core/aggregation"
)

// CheckpointAdapter implements storage.CheckpointStore over the checkpoints table.
type CheckpointAdapter struct {
	db *sql.DB
}

// NewCheckpointAdapter creates a CheckpointAdapter sharing the given connection.
func NewCheckpointAdapter(db *sql.DB) *CheckpointAdapter {
	return &CheckpointAdapter{db: db}
}

// GetCheckpoint returns the committed token of a partition; ok is false on cold start.
func (a *CheckpointAdapter) GetCheckpoint(ctx context.Context, partitionID int) (int64, bool, error) {
	var token int64
	err := a.db.QueryRowContext(ctx, queryGetCheckpoint, partitionID).Scan(&token)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint %d: %w", partitionID, err)
	}
	return token, true, nil
}

// AdvanceCheckpoint moves a partition forward; lower or equal tokens are ignored.
func (a *CheckpointAdapter) AdvanceCheckpoint(ctx context.Context, partitionID int, token int64) error {
	res, err := a.db.ExecContext(ctx, queryAdvanceCheckpoint, partitionID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance checkpoint %d: %w", partitionID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Debug("[Postgres] Skipping stale checkpoint advance",
			"partition_id", partitionID,
			"token", token)
	}
	return nil
}

// ListCheckpoints returns every stored entry ordered by partition.
func (a *CheckpointAdapter) ListCheckpoints(ctx context.Context) ([]aggregation.CheckpointEntry, error) {
	rows, err := a.db.QueryContext(ctx, queryListCheckpoints)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []aggregation.CheckpointEntry
	for rows.Next() {
		var e aggregation.CheckpointEntry
		if err := rows.Scan(&e.PartitionID, &e.LastCommittedSequenceToken, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list checkpoints: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: iterate: %w", err)
	}
	return out, nil
}
