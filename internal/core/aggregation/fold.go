package aggregation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/aevon-lab/matview/internal/schema"
	"github.com/shopspring/decimal"
)

// PayloadValidator checks a record payload before it is folded.
// *schema.PayloadSchema satisfies it.
type PayloadValidator interface {
	Validate(payload map[string]interface{}) error
}

// Folder groups change records by aggregation key and folds them into partial
// aggregates. It holds only configuration; Fold has no side effects.
type Folder struct {
	views     []ViewDefinition
	validator PayloadValidator
}

// NewFolder creates a folder for the given views. validator may be nil.
func NewFolder(views []ViewDefinition, validator PayloadValidator) *Folder {
	return &Folder{views: views, validator: validator}
}

// Fold folds a batch into per-key deltas. The result is independent of the
// order of records in the batch. Malformed records are returned as poison and
// never abort the batch.
func (f *Folder) Fold(batch []*v1.ChangeRecord) FoldResult {
	res := FoldResult{
		Deltas:    make(map[AggregationKey]*PartialAggregate),
		Positions: make(map[int]int64),
	}

	type pending struct {
		key   AggregationKey
		value decimal.Decimal
	}

	for _, rec := range batch {
		if rec == nil {
			continue
		}
		if rec.PartitionID >= 0 && rec.SequenceToken > res.Positions[rec.PartitionID] {
			res.Positions[rec.PartitionID] = rec.SequenceToken
		}

		if err := rec.Validate(); err != nil {
			res.Poison = append(res.Poison, poison(rec, err))
			continue
		}
		if f.validator != nil {
			if err := f.validator.Validate(rec.Payload); err != nil {
				res.Poison = append(res.Poison, poison(rec, err))
				continue
			}
		}

		// A record contributes to every view or to none.
		var adds []pending
		var failure error
		for _, view := range f.views {
			action, _ := rec.Payload[view.ActionField].(string)
			if !view.Eligible(action) {
				continue
			}
			key, err := KeyString(rec.Payload[view.KeyField])
			if err != nil {
				failure = fmt.Errorf("view %s: key field %q: %w", view.Name, view.KeyField, err)
				break
			}
			value := decimal.Zero
			if view.ValueField != "" {
				value, err = ParseDecimal(rec.Payload[view.ValueField])
				if err == nil {
					err = CheckScale(value)
				}
				if err != nil {
					failure = fmt.Errorf("view %s: value field %q: %w", view.Name, view.ValueField, err)
					break
				}
			}
			adds = append(adds, pending{key: AggregationKey{View: view.Name, Key: key}, value: value})
		}
		if failure != nil {
			res.Poison = append(res.Poison, poison(rec, failure))
			continue
		}
		if len(adds) == 0 {
			res.Ignored++
			continue
		}

		res.Eligible++
		for _, a := range adds {
			delta, ok := res.Deltas[a.key]
			if !ok {
				delta = NewPartialAggregate(a.key)
				res.Deltas[a.key] = delta
			}
			delta.Add(rec.PartitionID, rec.SequenceToken, a.value)
		}
	}

	for _, delta := range res.Deltas {
		delta.sortContributions()
	}
	sort.Slice(res.Poison, func(i, j int) bool {
		a, b := res.Poison[i], res.Poison[j]
		if a.PartitionID != b.PartitionID {
			return a.PartitionID < b.PartitionID
		}
		if a.SequenceToken != b.SequenceToken {
			return a.SequenceToken < b.SequenceToken
		}
		return a.SourceKey < b.SourceKey
	})
	return res
}

func poison(rec *v1.ChangeRecord, err error) PoisonRecord {
	p := PoisonRecord{
		SourceKey:     rec.SourceKey,
		PartitionID:   rec.PartitionID,
		SequenceToken: rec.SequenceToken,
		Reason:        err.Error(),
	}
	if d, ok := err.(schema.ValidationDetailer); ok {
		p.Details = d.Details()
	}
	return p
}

// KeyString renders a grouping value. Strings must be non-empty; integral
// numbers are accepted so numeric fields such as cart ids can key a view.
func KeyString(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("missing")
	case string:
		if val == "" {
			return "", fmt.Errorf("empty")
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("non-integral number %v", val)
		}
		return strconv.FormatInt(int64(val), 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}
