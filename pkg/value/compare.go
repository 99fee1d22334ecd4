// Package value compares and coerces the loosely typed cell values that
// storage readers produce (Go numbers of every width, strings, bools, times,
// byte slices and nil).
package value

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Compare orders a and b. ok is false when the two values have no common
// ordering, for example a bool against a string. nil orders before every
// non-nil value.
func Compare(a, b interface{}) (c int, ok bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	// exact integer comparison first so large int64s keep their precision
	if ai, aok := toInt64(a); aok {
		if bi, bok := toInt64(b); bok {
			return cmp3(ai < bi, ai > bi), true
		}
	}

	if af, aok := ToFloat64(a); aok {
		if bf, bok := ToFloat64(b); bok {
			return cmp3(af < bf, af > bf), true
		}
	}

	switch av := a.(type) {
	case string:
		if bv, isStr := b.(string); isStr {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, isBool := b.(bool); isBool {
			return cmp3(!av && bv, av && !bv), true
		}
	case time.Time:
		if bv, isTime := b.(time.Time); isTime {
			return cmp3(av.Before(bv), av.After(bv)), true
		}
	case []byte:
		if bv, isBytes := b.([]byte); isBytes {
			return bytes.Compare(av, bv), true
		}
		if bv, isStr := b.(string); isStr {
			return strings.Compare(string(av), bv), true
		}
	}
	if bv, isBytes := b.([]byte); isBytes {
		if av, isStr := a.(string); isStr {
			return strings.Compare(av, string(bv)), true
		}
	}
	return 0, false
}

// Equal reports whether a and b compare equal.
func Equal(a, b interface{}) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

// CompareForSort orders any two values, falling back to their formatted
// string form when they have no common ordering.
func CompareForSort(a, b interface{}) int {
	if c, ok := Compare(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

// ToFloat64 converts a numeric value to float64 if possible
func ToFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	default:
		return 0, false
	}
}

// ToString returns v as a string when it is textual
func ToString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return "", false
	}
}

// Format renders v for display. nil renders as NULL.
func Format(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32, float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
