package migration

import (
	"context"
	"errors"
	"testing"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/core/storage/memory"
	"github.com/aevon-lab/matview/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(sourceKey string, cartID int64, region string) *v1.ChangeRecord {
	return &v1.ChangeRecord{
		SourceKey:     sourceKey,
		SequenceToken: cartID,
		Payload: map[string]interface{}{
			"cart_id":      cartID,
			"action":       "Added",
			"item":         "Hat",
			"price":        12.5,
			"buyer_region": region,
		},
	}
}

type failingStore struct {
	storage.MigrationStore
}

func (failingStore) CopyRecords(context.Context, []storage.RekeyedRecord) (int, error) {
	return 0, errors.New("destination unavailable")
}

func TestSink_CopiesByKeyField(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := NewSink(store, "cart_id", schema.DefaultCartSchema())

	batch := []*v1.ChangeRecord{
		record("a", 7, "CA"),
		record("b", 7, "NY"),
		record("c", 9, "CA"),
		{SourceKey: "bad", Payload: map[string]interface{}{"action": "Added"}},
	}
	require.NoError(t, sink.Copy(ctx, batch))

	seven, err := store.ListByKey(ctx, "7", 10)
	require.NoError(t, err)
	require.Len(t, seven, 2)
	assert.Equal(t, "a", seven[0].SourceKey)
	assert.Equal(t, "b", seven[1].SourceKey)
	assert.Equal(t, "NY", seven[1].Record.Payload["buyer_region"])

	nine, err := store.ListByKey(ctx, "9", 10)
	require.NoError(t, err)
	assert.Len(t, nine, 1)
}

func TestSink_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := NewSink(store, "buyer_region", nil)

	batch := []*v1.ChangeRecord{record("a", 1, "CA"), record("b", 2, "CA")}
	require.NoError(t, sink.Copy(ctx, batch))
	require.NoError(t, sink.Copy(ctx, batch))

	got, err := store.ListByKey(ctx, "CA", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSink_SkipsRecordsWithoutKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := NewSink(store, "missing_field", nil)

	require.NoError(t, sink.Copy(ctx, []*v1.ChangeRecord{record("a", 1, "CA")}))

	got, err := store.ListByKey(ctx, "CA", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSink_StoreErrorSurfaces(t *testing.T) {
	sink := NewSink(failingStore{}, "buyer_region", nil)

	err := sink.Copy(context.Background(), []*v1.ChangeRecord{record("a", 1, "CA")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination unavailable")
}
