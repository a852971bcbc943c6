// Package runtime provides Kida render-time support: value semantics,
// the filter/function registries, autoescaping, block resolution and
// include depth tracking. Compiled templates are trees of Step closures
// executed against a per-render State.
package runtime

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Safe marks a string as already escaped. Escaping a Safe value is a
// no-op; filters that produce markup (escape, markdown) return Safe.
type Safe string

// Pair is one element of an iteration: Key is the index for sequences
// and the key for mappings.
type Pair struct {
	Key   any
	Value any
}

// Truth reports the truthiness of a value: none, false, zero, empty
// string and empty collections are false, everything else true.
func Truth(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case Safe:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return Truth(rv.Elem().Interface())
	}
	return true
}

// Str converts a value to its template output form. none renders empty.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case Safe:
		return string(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Repr(el))
		}
		sb.WriteByte(']')
		return sb.String()
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Repr is Str with strings quoted, used inside rendered collections.
func Repr(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Str(v)
}

// IsNone reports whether the value is missing or none.
func IsNone(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// -----------------------------------------------------------------------------
// Numeric conversions
// -----------------------------------------------------------------------------

// AsInt converts a value to int64 when it is integral.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

// AsFloat converts a value to float64 when it is numeric.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isNumeric(v any) bool {
	_, ok := AsFloat(v)
	return ok
}

func bothInt(a, b any) (int64, int64, bool) {
	x, ok := AsInt(a)
	if !ok {
		return 0, 0, false
	}
	// Floats with integral values satisfy AsInt; only treat the pair as
	// integer arithmetic when neither side is a float.
	if _, isF := a.(float64); isF {
		return 0, 0, false
	}
	y, ok := AsInt(b)
	if !ok {
		return 0, 0, false
	}
	if _, isF := b.(float64); isF {
		return 0, 0, false
	}
	return x, y, true
}

// -----------------------------------------------------------------------------
// Arithmetic
// -----------------------------------------------------------------------------

// Add returns a + b. Integer operands stay integers.
func Add(a, b any) (any, error) {
	if x, y, ok := bothInt(a, b); ok {
		return x + y, nil
	}
	x, okA := AsFloat(a)
	y, okB := AsFloat(b)
	if !okA || !okB {
		return nil, numErr("+", a, b)
	}
	return x + y, nil
}

// Sub returns a - b.
func Sub(a, b any) (any, error) {
	if x, y, ok := bothInt(a, b); ok {
		return x - y, nil
	}
	x, okA := AsFloat(a)
	y, okB := AsFloat(b)
	if !okA || !okB {
		return nil, numErr("-", a, b)
	}
	return x - y, nil
}

// Mul returns a * b.
func Mul(a, b any) (any, error) {
	if x, y, ok := bothInt(a, b); ok {
		return x * y, nil
	}
	x, okA := AsFloat(a)
	y, okB := AsFloat(b)
	if !okA || !okB {
		return nil, numErr("*", a, b)
	}
	return x * y, nil
}

// Div returns a / b as a float; integer division truncation is never
// silent.
func Div(a, b any) (any, error) {
	x, okA := AsFloat(a)
	y, okB := AsFloat(b)
	if !okA || !okB {
		return nil, numErr("/", a, b)
	}
	if y == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return x / y, nil
}

// Mod returns a % b over integers.
func Mod(a, b any) (any, error) {
	x, okA := AsInt(a)
	y, okB := AsInt(b)
	if !okA || !okB {
		return nil, numErr("%", a, b)
	}
	if y == 0 {
		return nil, fmt.Errorf("modulo by zero")
	}
	return x % y, nil
}

// Neg returns -a.
func Neg(a any) (any, error) {
	switch x := a.(type) {
	case int64:
		return -x, nil
	case int:
		return -int64(x), nil
	case float64:
		return -x, nil
	}
	if x, ok := AsInt(a); ok {
		return -x, nil
	}
	if x, ok := AsFloat(a); ok {
		return -x, nil
	}
	return nil, fmt.Errorf("unary - applied to %s", TypeName(a))
}

// Concat stringifies and joins both operands (the ~ operator).
func Concat(a, b any) string {
	return Str(a) + Str(b)
}

func numErr(op string, a, b any) error {
	return fmt.Errorf("operator %s needs numeric operands, got %s and %s", op, TypeName(a), TypeName(b))
}

// TypeName names a value's type for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "none"
	case bool:
		return "bool"
	case int, int64:
		return "int"
	case float64:
		return "float"
	case string, Safe:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	}
	return reflect.TypeOf(v).String()
}

// -----------------------------------------------------------------------------
// Comparison
// -----------------------------------------------------------------------------

// Equal compares two values; numbers compare across int/float.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return IsNone(a) && IsNone(b)
	}
	if isNumeric(a) && isNumeric(b) {
		x, _ := AsFloat(a)
		y, _ := AsFloat(b)
		return x == y
	}
	as, aStr := stringOf(a)
	bs, bStr := stringOf(b)
	if aStr && bStr {
		return as == bs
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values: -1, 0 or 1. Numbers and strings are
// ordered; other types are an error.
func Compare(a, b any) (int, error) {
	if isNumeric(a) && isNumeric(b) {
		x, _ := AsFloat(a)
		y, _ := AsFloat(b)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	}
	as, aStr := stringOf(a)
	bs, bStr := stringOf(b)
	if aStr && bStr {
		return strings.Compare(as, bs), nil
	}
	return 0, fmt.Errorf("cannot order %s and %s", TypeName(a), TypeName(b))
}

func stringOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case Safe:
		return string(x), true
	}
	return "", false
}

// Contains implements the in operator: list membership, substring, or
// map key presence.
func Contains(needle, hay any) (bool, error) {
	switch h := hay.(type) {
	case string:
		return strings.Contains(h, Str(needle)), nil
	case Safe:
		return strings.Contains(string(h), Str(needle)), nil
	case []any:
		for _, el := range h {
			if Equal(needle, el) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := h[Str(needle)]
		return ok, nil
	}
	rv := reflect.ValueOf(hay)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equal(needle, rv.Index(i).Interface()) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if Equal(needle, k.Interface()) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("operator in needs a string, list, or map, got %s", TypeName(hay))
}

// Len returns the length of a string (in runes) or collection.
func Len(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return len([]rune(x)), true
	case Safe:
		return len([]rune(string(x))), true
	case []any:
		return len(x), true
	case map[string]any:
		return len(x), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// -----------------------------------------------------------------------------
// Iteration
// -----------------------------------------------------------------------------

// Iter materializes an iterable into key/value pairs. Sequences pair
// each element with its index; maps iterate in sorted key order so
// rendering is deterministic.
func Iter(v any) ([]Pair, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		pairs := make([]Pair, len(x))
		for i, el := range x {
			pairs[i] = Pair{Key: int64(i), Value: el}
		}
		return pairs, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = Pair{Key: k, Value: x[k]}
		}
		return pairs, nil
	case string:
		runes := []rune(x)
		pairs := make([]Pair, len(runes))
		for i, r := range runes {
			pairs[i] = Pair{Key: int64(i), Value: string(r)}
		}
		return pairs, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		pairs := make([]Pair, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			pairs[i] = Pair{Key: int64(i), Value: rv.Index(i).Interface()}
		}
		return pairs, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return Str(keys[i].Interface()) < Str(keys[j].Interface())
		})
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = Pair{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return pairs, nil
	}
	return nil, fmt.Errorf("cannot iterate over %s", TypeName(v))
}

// MakeRange materializes a range literal. Inclusive ranges include the
// stop value; a negative step counts down.
func MakeRange(start, stop, step int64, exclusive bool) ([]any, error) {
	if step == 0 {
		return nil, fmt.Errorf("range step cannot be zero")
	}
	var out []any
	if step > 0 {
		last := stop
		if exclusive {
			last--
		}
		for i := start; i <= last; i += step {
			out = append(out, i)
		}
	} else {
		last := stop
		if exclusive {
			last++
		}
		for i := start; i >= last; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Attribute and subscript access
// -----------------------------------------------------------------------------

// Attr resolves value.name. Missing attributes return ok=false rather
// than an error; the caller decides between none and strict failure.
func Attr(v any, name string) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		val, ok := x[name]
		return val, ok
	case map[string]string:
		val, ok := x[name]
		return val, ok
	case *LoopValue:
		return x.attr(name)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		// Exact match first, then case-insensitive, matching how
		// template authors write lowercased field names.
		f := rv.FieldByNameFunc(func(n string) bool { return n == name })
		if !f.IsValid() {
			f = rv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
		}
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), true
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(name))
			if mv.IsValid() {
				return mv.Interface(), true
			}
		}
	}
	return nil, false
}

// Index resolves value[key]: integer subscripts for sequences and
// strings, otherwise key lookup.
func Index(v any, key any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case []any:
		i, ok := seqIndex(key, len(x))
		if !ok {
			return nil, false
		}
		return x[i], true
	case string:
		runes := []rune(x)
		i, ok := seqIndex(key, len(runes))
		if !ok {
			return nil, false
		}
		return string(runes[i]), true
	case map[string]any:
		val, ok := x[Str(key)]
		return val, ok
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		i, ok := seqIndex(key, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if kv.IsValid() && kv.Type().AssignableTo(rv.Type().Key()) {
			mv := rv.MapIndex(kv)
			if mv.IsValid() {
				return mv.Interface(), true
			}
		}
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(Str(key)))
			if mv.IsValid() {
				return mv.Interface(), true
			}
		}
	}
	return nil, false
}

// seqIndex converts a subscript to a valid sequence index. Negative
// indexes count from the end.
func seqIndex(key any, length int) (int, bool) {
	n, ok := AsInt(key)
	if !ok {
		return 0, false
	}
	if n < 0 {
		n += int64(length)
	}
	if n < 0 || n >= int64(length) {
		return 0, false
	}
	return int(n), true
}
