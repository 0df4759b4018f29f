package postgres

import (
	"bytes"
	"encoding/json"
	"fmt"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/aggregation"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// decodeJSON keeps numbers as json.Number so prices round-trip without float drift.
func decodeJSON(data []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// scanRecordRow scans a change_records row.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanRecordRow(row scanner) (*v1.ChangeRecord, error) {
	var rec v1.ChangeRecord
	var payloadJSON []byte

	err := row.Scan(
		&rec.SourceKey,
		&rec.PartitionID,
		&rec.SequenceToken,
		&rec.OccurredAt,
		&rec.IngestedAt,
		&payloadJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan change record row: %w", err)
	}

	if err := decodeJSON(payloadJSON, &rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &rec, nil
}

// scanViewRow scans a view_rows row.
func scanViewRow(row scanner) (aggregation.ViewRow, error) {
	var r aggregation.ViewRow
	var watermarksJSON []byte

	err := row.Scan(
		&r.View,
		&r.Key,
		&r.Count,
		&r.TotalSum,
		&watermarksJSON,
		&r.ConcurrencyToken,
		&r.UpdatedAt,
	)
	if err != nil {
		return aggregation.ViewRow{}, err
	}

	r.Watermarks = map[int]int64{}
	if len(watermarksJSON) > 0 {
		if err := json.Unmarshal(watermarksJSON, &r.Watermarks); err != nil {
			return aggregation.ViewRow{}, fmt.Errorf("failed to unmarshal watermarks: %w", err)
		}
	}
	return r, nil
}

// marshalWatermarks never returns JSON null; the column is NOT NULL.
func marshalWatermarks(w map[int]int64) ([]byte, error) {
	if w == nil {
		w = map[int]int64{}
	}
	return json.Marshal(w)
}
