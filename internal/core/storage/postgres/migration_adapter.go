package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aevon-lab/matview/internal/core/storage"
)

// MigrationAdapter implements storage.MigrationStore over the records_by_key table.
type MigrationAdapter struct {
	db *sql.DB
}

// NewMigrationAdapter creates a MigrationAdapter sharing the given connection.
func NewMigrationAdapter(db *sql.DB) *MigrationAdapter {
	return &MigrationAdapter{db: db}
}

// CopyRecords inserts the records not copied yet in one transaction and
// returns how many were new.
func (a *MigrationAdapter) CopyRecords(ctx context.Context, records []storage.RekeyedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("copy records: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryCopyRecord)
	if err != nil {
		return 0, fmt.Errorf("copy records: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, r := range records {
		recordJSON, err := json.Marshal(r.Record)
		if err != nil {
			return 0, fmt.Errorf("copy records: marshal %s: %w", r.SourceKey, err)
		}
		res, err := stmt.ExecContext(ctx, r.PartitionKey, r.SourceKey, recordJSON, now)
		if err != nil {
			return 0, fmt.Errorf("copy records: insert %s: %w", r.SourceKey, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("copy records: commit: %w", err)
	}
	return inserted, nil
}

// ListByKey returns the records copied under partitionKey ordered by source_key.
func (a *MigrationAdapter) ListByKey(ctx context.Context, partitionKey string, limit int) ([]storage.RekeyedRecord, error) {
	rows, err := a.db.QueryContext(ctx, queryListByKey, partitionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list records by key: %w", err)
	}
	defer rows.Close()

	var out []storage.RekeyedRecord
	for rows.Next() {
		var r storage.RekeyedRecord
		var recordJSON []byte
		if err := rows.Scan(&r.PartitionKey, &r.SourceKey, &recordJSON); err != nil {
			return nil, fmt.Errorf("list records by key: scan: %w", err)
		}
		if err := decodeJSON(recordJSON, &r.Record); err != nil {
			return nil, fmt.Errorf("list records by key: unmarshal: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records by key: iterate: %w", err)
	}
	return out, nil
}
