package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func rekeyed(region, sourceKey string) storage.RekeyedRecord {
	return storage.RekeyedRecord{
		PartitionKey: region,
		SourceKey:    sourceKey,
		Record: v1.ChangeRecord{
			SourceKey: sourceKey,
			Payload:   map[string]interface{}{"buyer_region": region},
		},
	}
}

func TestMigrationAdapter_CopyRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryCopyRecord))
	prep.ExpectExec().WithArgs("CA", "a", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	// Already copied on a previous attempt.
	prep.ExpectExec().WithArgs("NY", "b", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := NewMigrationAdapter(db).CopyRecords(context.Background(), []storage.RekeyedRecord{
		rekeyed("CA", "a"),
		rekeyed("NY", "b"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationAdapter_CopyRecordsRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(queryCopyRecord)).
		ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = NewMigrationAdapter(db).CopyRecords(context.Background(), []storage.RekeyedRecord{rekeyed("CA", "a")})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationAdapter_CopyRecordsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	n, err := NewMigrationAdapter(db).CopyRecords(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationAdapter_ListByKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryListByKey)).
		WithArgs("CA", 10).
		WillReturnRows(sqlmock.NewRows([]string{"partition_key", "source_key", "record"}).
			AddRow("CA", "a", []byte(`{"source_key":"a","partition_id":0,"sequence_token":4,"payload":{"price":1.5}}`)))

	out, err := NewMigrationAdapter(db).ListByKey(context.Background(), "CA", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(4), out[0].Record.SequenceToken)
	require.NoError(t, mock.ExpectationsWereMet())
}
