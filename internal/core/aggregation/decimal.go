package aggregation

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxScale is the number of fractional digits a summed value may carry. The
// Postgres backend stores sums as NUMERIC(38, 9).
const MaxScale = 9

// CheckScale rejects values with more than MaxScale significant fractional digits.
func CheckScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MaxScale)) {
		return fmt.Errorf("value %s has more than %d decimal places", d.String(), MaxScale)
	}
	return nil
}

// ParseDecimal converts a payload value into an exact decimal.
// JSON numbers arrive as float64 (or json.Number when decoded with UseNumber);
// NewFromFloat yields the shortest exact decimal for the float.
func ParseDecimal(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("value is null")
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, fmt.Errorf("value %v is not finite", val)
		}
		return decimal.NewFromFloat(val), nil
	case float32:
		return ParseDecimal(float64(val))
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("value %q is not a decimal", val)
		}
		return d, nil
	case decimal.Decimal:
		return val, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}
