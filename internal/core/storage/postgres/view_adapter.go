package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/google/uuid"
)

// ViewAdapter implements storage.ViewStore over the view_rows table.
type ViewAdapter struct {
	db *sql.DB

	// newToken is swapped in tests for deterministic tokens.
	newToken func() string
}

// NewViewAdapter creates a ViewAdapter sharing the given connection.
func NewViewAdapter(db *sql.DB) *ViewAdapter {
	return &ViewAdapter{db: db, newToken: uuid.NewString}
}

// GetRow returns the row for key or storage.ErrNotFound.
func (a *ViewAdapter) GetRow(ctx context.Context, key aggregation.AggregationKey) (aggregation.ViewRow, error) {
	row, err := scanViewRow(a.db.QueryRowContext(ctx, queryGetViewRow, key.View, key.Key))
	if err == sql.ErrNoRows {
		return aggregation.ViewRow{}, storage.ErrNotFound
	}
	if err != nil {
		return aggregation.ViewRow{}, fmt.Errorf("get view row %s: %w", key, err)
	}
	return row, nil
}

// PutRow writes row if the stored token equals expectedToken ("" = create).
func (a *ViewAdapter) PutRow(ctx context.Context, row aggregation.ViewRow, expectedToken string) (string, error) {
	watermarksJSON, err := marshalWatermarks(row.Watermarks)
	if err != nil {
		return "", fmt.Errorf("put view row: marshal watermarks: %w", err)
	}

	token := a.newToken()
	now := time.Now().UTC()

	var res sql.Result
	if expectedToken == "" {
		res, err = a.db.ExecContext(ctx, queryInsertViewRow,
			row.View, row.Key, row.Count, row.TotalSum, watermarksJSON, token, now)
	} else {
		res, err = a.db.ExecContext(ctx, queryUpdateViewRow,
			row.View, row.Key, row.Count, row.TotalSum, watermarksJSON, token, now, expectedToken)
	}
	if err != nil {
		return "", fmt.Errorf("put view row %s/%s: %w", row.View, row.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("put view row %s/%s: rows affected: %w", row.View, row.Key, err)
	}
	if n == 0 {
		return "", storage.ErrConflict
	}
	return token, nil
}

// ListRows returns the rows of one view ordered by key.
func (a *ViewAdapter) ListRows(ctx context.Context, view string) ([]aggregation.ViewRow, error) {
	rows, err := a.db.QueryContext(ctx, queryListViewRows, view)
	if err != nil {
		return nil, fmt.Errorf("list view rows %s: %w", view, err)
	}
	defer rows.Close()

	var out []aggregation.ViewRow
	for rows.Next() {
		r, err := scanViewRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list view rows %s: scan: %w", view, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list view rows %s: iterate: %w", view, err)
	}
	return out, nil
}
