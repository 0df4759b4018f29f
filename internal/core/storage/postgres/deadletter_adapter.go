package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/google/uuid"
)

// DeadLetterAdapter implements storage.DeadLetterStore over the dead_letters table.
type DeadLetterAdapter struct {
	db *sql.DB
}

// NewDeadLetterAdapter creates a DeadLetterAdapter sharing the given connection.
func NewDeadLetterAdapter(db *sql.DB) *DeadLetterAdapter {
	return &DeadLetterAdapter{db: db}
}

// ReportDeadLetter stores dl, assigning ID and CreatedAt when unset. An entry
// whose ID is already stored is ignored.
func (a *DeadLetterAdapter) ReportDeadLetter(ctx context.Context, dl storage.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}

	// Nil details produce SQL NULL rather than JSON "null".
	var details interface{}
	if len(dl.Details) > 0 {
		detailsJSON, err := json.Marshal(dl.Details)
		if err != nil {
			return fmt.Errorf("report dead letter: marshal details: %w", err)
		}
		details = detailsJSON
	}

	_, err := a.db.ExecContext(ctx, queryInsertDeadLetter,
		dl.ID,
		dl.Kind,
		dl.PartitionID,
		dl.FirstToken,
		dl.LastToken,
		dl.SourceKey,
		dl.View,
		dl.Key,
		dl.Reason,
		details,
		dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("report dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the most recent entries first.
func (a *DeadLetterAdapter) ListDeadLetters(ctx context.Context, limit int) ([]storage.DeadLetter, error) {
	rows, err := a.db.QueryContext(ctx, queryListDeadLetters, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []storage.DeadLetter
	for rows.Next() {
		var dl storage.DeadLetter
		var detailsJSON []byte
		if err := rows.Scan(
			&dl.ID,
			&dl.Kind,
			&dl.PartitionID,
			&dl.FirstToken,
			&dl.LastToken,
			&dl.SourceKey,
			&dl.View,
			&dl.Key,
			&dl.Reason,
			&detailsJSON,
			&dl.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("list dead letters: scan: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := decodeJSON(detailsJSON, &dl.Details); err != nil {
				return nil, fmt.Errorf("list dead letters: unmarshal details: %w", err)
			}
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: iterate: %w", err)
	}
	return out, nil
}
