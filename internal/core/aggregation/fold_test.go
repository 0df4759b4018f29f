package aggregation

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartRecord(partition int, token int64, region string, price float64, action v1.Action) *v1.ChangeRecord {
	return &v1.ChangeRecord{
		SourceKey:     fmt.Sprintf("%s-%s-%d", region, action, token),
		PartitionID:   partition,
		SequenceToken: token,
		Payload: map[string]interface{}{
			"cart_id":      int64(token),
			"action":       string(action),
			"item":         "Socks",
			"price":        price,
			"buyer_region": region,
		},
	}
}

func salesKey(region string) AggregationKey {
	return AggregationKey{View: "sales_by_region", Key: region}
}

func requireDelta(t *testing.T, res FoldResult, key AggregationKey, count int64, sum string) {
	t.Helper()
	d, ok := res.Deltas[key]
	require.True(t, ok, "missing delta for %s", key)
	assert.Equal(t, count, d.Count, "count for %s", key)
	assert.True(t, decimal.RequireFromString(sum).Equal(d.Sum), "sum for %s: got %s", key, d.Sum)
}

func TestFold_PurchasesByRegion(t *testing.T) {
	folder := NewFolder([]ViewDefinition{DefaultView()}, schema.DefaultCartSchema())

	res := folder.Fold([]*v1.ChangeRecord{
		cartRecord(0, 1, "CA", 10, v1.ActionPurchased),
		cartRecord(0, 2, "CA", 5, v1.ActionViewed),
		cartRecord(0, 3, "NY", 20, v1.ActionPurchased),
	})

	require.Len(t, res.Deltas, 2)
	requireDelta(t, res, salesKey("CA"), 1, "10")
	requireDelta(t, res, salesKey("NY"), 1, "20")
	assert.Equal(t, 2, res.Eligible)
	assert.Equal(t, 1, res.Ignored)
	assert.Empty(t, res.Poison)
	assert.Equal(t, map[int]int64{0: 3}, res.Positions)
}

func TestFold_EmptyBatch(t *testing.T) {
	res := NewFolder([]ViewDefinition{DefaultView()}, nil).Fold(nil)

	assert.Empty(t, res.Deltas)
	assert.Empty(t, res.Poison)
	assert.Empty(t, res.Positions)
}

func TestFold_OrderIndependent(t *testing.T) {
	folder := NewFolder([]ViewDefinition{DefaultView()}, schema.DefaultCartSchema())

	var batch []*v1.ChangeRecord
	regions := []string{"CA", "NY", "TX", "WA"}
	for i := int64(1); i <= 60; i++ {
		action := v1.ActionPurchased
		if i%4 == 0 {
			action = v1.ActionAdded
		}
		batch = append(batch, cartRecord(int(i%3), i, regions[i%4], float64(i)+0.25, action))
	}
	batch = append(batch, &v1.ChangeRecord{SourceKey: "bad", PartitionID: 1, SequenceToken: 99, Payload: map[string]interface{}{"action": "Purchased"}})

	want := folder.Fold(batch)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := append([]*v1.ChangeRecord(nil), batch...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := folder.Fold(shuffled)

		require.Equal(t, want.Keys(), got.Keys())
		for _, k := range want.Keys() {
			assert.Equal(t, want.Deltas[k].Count, got.Deltas[k].Count)
			assert.True(t, want.Deltas[k].Sum.Equal(got.Deltas[k].Sum))
			assert.Equal(t, want.Deltas[k].Ranges, got.Deltas[k].Ranges)
		}
		assert.Equal(t, want.Poison, got.Poison)
		assert.Equal(t, want.Positions, got.Positions)
		assert.Equal(t, want.Eligible, got.Eligible)
		assert.Equal(t, want.Ignored, got.Ignored)
	}
}

func TestFold_PoisonDoesNotAbortBatch(t *testing.T) {
	folder := NewFolder([]ViewDefinition{DefaultView()}, schema.DefaultCartSchema())

	missingRegion := cartRecord(2, 5, "CA", 7, v1.ActionPurchased)
	delete(missingRegion.Payload, "buyer_region")
	stringPrice := cartRecord(2, 6, "CA", 0, v1.ActionPurchased)
	stringPrice.Payload["price"] = "lots"

	res := folder.Fold([]*v1.ChangeRecord{
		cartRecord(2, 4, "CA", 10, v1.ActionPurchased),
		missingRegion,
		stringPrice,
		{SourceKey: "", PartitionID: 2, SequenceToken: 7, Payload: map[string]interface{}{}},
		cartRecord(2, 8, "CA", 1.5, v1.ActionPurchased),
	})

	requireDelta(t, res, salesKey("CA"), 2, "11.5")
	require.Len(t, res.Poison, 3)
	assert.Equal(t, int64(5), res.Poison[0].SequenceToken)
	assert.Equal(t, []string{"buyer_region"}, res.Poison[0].Details["fields"])
	assert.Equal(t, int64(6), res.Poison[1].SequenceToken)
	assert.Contains(t, res.Poison[2].Reason, "source_key")
	assert.Equal(t, int64(8), res.Positions[2], "poison records still advance the position")
}

func TestFold_WithoutValidatorPoisonsUnusableKeys(t *testing.T) {
	folder := NewFolder([]ViewDefinition{DefaultView()}, nil)

	rec := cartRecord(0, 1, "", 3, v1.ActionPurchased)
	res := folder.Fold([]*v1.ChangeRecord{rec})

	require.Len(t, res.Poison, 1)
	assert.Contains(t, res.Poison[0].Reason, "key field")
	assert.Empty(t, res.Deltas)
}

func TestFold_ValueBeyondStoredScaleIsPoison(t *testing.T) {
	folder := NewFolder([]ViewDefinition{DefaultView()}, nil)

	tooPrecise := cartRecord(0, 2, "CA", 0, v1.ActionPurchased)
	tooPrecise.Payload["price"] = json.Number("1.0000000001")
	atLimit := cartRecord(0, 3, "CA", 0, v1.ActionPurchased)
	atLimit.Payload["price"] = json.Number("2.000000001")

	res := folder.Fold([]*v1.ChangeRecord{
		cartRecord(0, 1, "CA", 10, v1.ActionPurchased),
		tooPrecise,
		atLimit,
	})

	requireDelta(t, res, salesKey("CA"), 2, "12.000000001")
	require.Len(t, res.Poison, 1)
	assert.Equal(t, int64(2), res.Poison[0].SequenceToken)
	assert.Contains(t, res.Poison[0].Reason, "decimal places")
}

func TestFold_MultipleViewsAllOrNothing(t *testing.T) {
	byCart := ViewDefinition{Name: "funnel_by_cart", KeyField: "cart_id", ActionField: "action"}
	itemRevenue := ViewDefinition{Name: "revenue_by_item", KeyField: "item", ValueField: "discount", ActionField: "action", Actions: []string{"Purchased"}}
	folder := NewFolder([]ViewDefinition{DefaultView(), byCart, itemRevenue}, nil)

	viewed := cartRecord(0, 1, "CA", 3, v1.ActionViewed)
	purchased := cartRecord(0, 2, "CA", 3, v1.ActionPurchased)
	purchased.Payload["discount"] = 1.25
	noDiscount := cartRecord(0, 3, "CA", 3, v1.ActionPurchased)

	res := folder.Fold([]*v1.ChangeRecord{viewed, purchased, noDiscount})

	requireDelta(t, res, AggregationKey{View: "funnel_by_cart", Key: "1"}, 1, "0")
	requireDelta(t, res, AggregationKey{View: "funnel_by_cart", Key: "2"}, 1, "0")
	requireDelta(t, res, AggregationKey{View: "revenue_by_item", Key: "Socks"}, 1, "1.25")
	requireDelta(t, res, salesKey("CA"), 1, "3")
	_, ok := res.Deltas[AggregationKey{View: "funnel_by_cart", Key: "3"}]
	assert.False(t, ok, "poison record must not contribute to any view")
	require.Len(t, res.Poison, 1)
	assert.Equal(t, int64(3), res.Poison[0].SequenceToken)
}

func TestFold_RangesPerPartition(t *testing.T) {
	folder := NewFolder([]ViewDefinition{DefaultView()}, nil)

	res := folder.Fold([]*v1.ChangeRecord{
		cartRecord(1, 12, "CA", 1, v1.ActionPurchased),
		cartRecord(3, 4, "CA", 1, v1.ActionPurchased),
		cartRecord(1, 10, "CA", 1, v1.ActionPurchased),
	})

	d := res.Deltas[salesKey("CA")]
	assert.Equal(t, map[int]TokenRange{1: {First: 10, Last: 12}, 3: {First: 4, Last: 4}}, d.Ranges)
	assert.Equal(t, map[int]int64{1: 12, 3: 4}, d.Positions())
}
