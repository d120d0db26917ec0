package nql

import "strings"

// CompareValues compares two payload Values and returns -1, 0, or 1 the
// way datalog.CompareValues does for datoms: numeric types compare
// numerically (with best-effort coercion of numeric strings), strings
// compare lexicographically, and a type mismatch that can't be coerced
// falls back to comparing the string forms. Used by the filter
// predicate's ordered comparisons (<, <=, >, >=).
func CompareValues(left, right Value) int {
	if left.IsNull() && right.IsNull() {
		return 0
	}
	if left.IsNull() {
		return -1
	}
	if right.IsNull() {
		return 1
	}

	if ln, lok := left.AsNumber(); lok {
		if rn, rok := right.AsNumber(); rok {
			switch {
			case ln < rn:
				return -1
			case ln > rn:
				return 1
			default:
				return 0
			}
		}
	}

	ls, _ := left.AsString()
	rs, _ := right.AsString()
	return strings.Compare(ls, rs)
}

// DeepEqual reports whether two Values are equal after best-effort
// numeric coercion of numeric strings, per spec §4.1: "==, != are deep
// equality on scalar values after best-effort numeric coercion."
func DeepEqual(left, right Value) bool {
	if left.IsNull() || right.IsNull() {
		return left.IsNull() && right.IsNull()
	}

	if ln, lok := left.AsNumber(); lok {
		if rn, rok := right.AsNumber(); rok {
			return ln == rn
		}
	}

	if left.kind == KindArray && right.kind == KindArray {
		if len(left.arr) != len(right.arr) {
			return false
		}
		for i := range left.arr {
			if !DeepEqual(left.arr[i], right.arr[i]) {
				return false
			}
		}
		return true
	}

	if left.kind == KindObject && right.kind == KindObject {
		if len(left.obj) != len(right.obj) {
			return false
		}
		for k, lv := range left.obj {
			rv, ok := right.obj[k]
			if !ok || !DeepEqual(lv, rv) {
				return false
			}
		}
		return true
	}

	ls, lok := left.AsString()
	rs, rok := right.AsString()
	return lok && rok && ls == rs
}
