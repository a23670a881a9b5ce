package blackboard

import (
	"reflect"
	"strings"
)

// AsFloat coerces numeric values to float64. JSON decoding produces
// float64, YAML produces int, and node code may store any Go numeric, so
// comparisons normalize through this.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Compare orders two blackboard values: -1 when a < b, 0 when equal, 1 when
// a > b. The second result is false when the values are not mutually
// comparable. Numbers compare numerically regardless of their Go type;
// strings compare lexicographically.
func Compare(a, b any) (int, bool) {
	if af, ok := AsFloat(a); ok {
		bf, ok := AsFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// Equal reports whether two blackboard values are equal, coercing numeric
// types before falling back to deep equality.
func Equal(a, b any) bool {
	if cmp, ok := Compare(a, b); ok {
		return cmp == 0
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
