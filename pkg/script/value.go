package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Runtime values are plain Go values: nil, bool, float64, string, []any,
// map[string]any, plus the builder types defined in builders.go. The helpers
// here implement literal JS semantics — truthiness, coercing arithmetic, and
// the loose/strict equality distinction.

// truthy implements JS ToBoolean.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

// toNumber implements JS ToNumber; NaN for non-numeric strings.
func toNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	}
	return math.NaN()
}

// toJSString implements JS ToString for display and concatenation.
func toJSString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(x)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			if el == nil {
				parts[i] = ""
			} else {
				parts[i] = toJSString(el)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	return fmt.Sprintf("%v", v)
}

// formatNumber renders a float the way JS does: integers without a decimal
// point.
func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// jsAdd implements the + operator: string concatenation when either operand
// is a string, numeric addition otherwise.
func jsAdd(l, r any) any {
	if ls, ok := l.(string); ok {
		return ls + toJSString(r)
	}
	if rs, ok := r.(string); ok {
		return toJSString(l) + rs
	}
	return toNumber(l) + toNumber(r)
}

// looseEquals implements ==, including the cross-type coercions.
func looseEquals(l, r any) bool {
	if l == nil && r == nil {
		return true
	}
	if l == nil || r == nil {
		return false
	}
	switch lv := l.(type) {
	case bool:
		return looseEquals(toNumber(lv), r)
	case float64:
		switch rv := r.(type) {
		case float64:
			return lv == rv
		case string, bool:
			return lv == toNumber(rv)
		}
		return false
	case string:
		switch rv := r.(type) {
		case string:
			return lv == rv
		case float64:
			return toNumber(lv) == rv
		case bool:
			return toNumber(lv) == toNumber(rv)
		}
		return false
	}
	// Reference comparison for everything else.
	return strictEquals(l, r)
}

// strictEquals implements ===: no coercion, same type and value (reference
// identity for objects and arrays).
func strictEquals(l, r any) bool {
	if l == nil && r == nil {
		return true
	}
	switch lv := l.(type) {
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv
	case float64:
		rv, ok := r.(float64)
		return ok && lv == rv
	case string:
		rv, ok := r.(string)
		return ok && lv == rv
	}
	// Pointer-typed values (builder refs, maps, slices) compare by identity
	// where Go would allow it; otherwise they are unequal.
	type comparer interface{ refIdentity() any }
	if lc, ok := l.(comparer); ok {
		if rc, ok := r.(comparer); ok {
			return lc.refIdentity() == rc.refIdentity()
		}
	}
	return false
}

// compareNumbers applies a relational operator under numeric coercion, with
// the JS string-to-string ordering special case.
func compareValues(op string, l, r any) bool {
	if ls, lok := l.(string); lok {
		if rs, rok := r.(string); rok {
			switch op {
			case "<":
				return ls < rs
			case "<=":
				return ls <= rs
			case ">":
				return ls > rs
			case ">=":
				return ls >= rs
			}
		}
	}
	ln, rn := toNumber(l), toNumber(r)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return false
	}
	switch op {
	case "<":
		return ln < rn
	case "<=":
		return ln <= rn
	case ">":
		return ln > rn
	case ">=":
		return ln >= rn
	}
	return false
}
