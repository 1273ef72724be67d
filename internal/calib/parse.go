package calib

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseFinite converts a raw JSON value (number or numeric string) into a
// finite float64. NaN and infinities are rejected along with anything that
// does not parse as a number. The field name is included in the error so the
// caller can report which input failed.
func ParseFinite(field string, raw any) (float64, error) {
	var v float64

	switch val := raw.(type) {
	case float64:
		v = val
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: '%s' is not a number: %q", ErrInvalidNumberInput, field, val.String())
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: '%s' is not a number: %q", ErrInvalidNumberInput, field, val)
		}
		v = f
	default:
		return 0, fmt.Errorf("%w: '%s' must be a number, got %T", ErrInvalidNumberInput, field, raw)
	}

	if !isFinite(v) {
		return 0, fmt.Errorf("%w: '%s' must be finite", ErrInvalidNumberInput, field)
	}

	return v, nil
}
