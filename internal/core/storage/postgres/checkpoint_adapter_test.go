package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestCheckpointAdapter_GetCheckpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewCheckpointAdapter(db)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetCheckpoint)).
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows([]string{"sequence_token"}))
	mock.ExpectQuery(regexp.QuoteMeta(queryGetCheckpoint)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"sequence_token"}).AddRow(int64(77)))

	token, ok, err := adapter.GetCheckpoint(context.Background(), 0)
	require.NoError(t, err)
	require.False(t, ok, "absent entry means cold start")
	require.Zero(t, token)

	token, ok, err = adapter.GetCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(77), token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointAdapter_AdvanceCheckpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewCheckpointAdapter(db)

	mock.ExpectExec(regexp.QuoteMeta(queryAdvanceCheckpoint)).
		WithArgs(2, int64(50), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Stale advance: the conditional upsert touches no row and is not an error.
	mock.ExpectExec(regexp.QuoteMeta(queryAdvanceCheckpoint)).
		WithArgs(2, int64(40), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryAdvanceCheckpoint)).
		WithArgs(2, int64(60), sqlmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	require.NoError(t, adapter.AdvanceCheckpoint(context.Background(), 2, 50))
	require.NoError(t, adapter.AdvanceCheckpoint(context.Background(), 2, 40))
	require.ErrorContains(t, adapter.AdvanceCheckpoint(context.Background(), 2, 60), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointAdapter_ListCheckpoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(queryListCheckpoints)).
		WillReturnRows(sqlmock.NewRows([]string{"partition_id", "sequence_token", "updated_at"}).
			AddRow(0, int64(5), now).
			AddRow(3, int64(9), now))

	entries, err := NewCheckpointAdapter(db).ListCheckpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 3, entries[1].PartitionID)
	require.Equal(t, int64(9), entries[1].LastCommittedSequenceToken)
	require.NoError(t, mock.ExpectationsWereMet())
}
