package doc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf16"
)

// ErrUnsupportedValue is returned when a value cannot be represented in a
// document (channels, functions, non-string map keys, NaN, ...).
var ErrUnsupportedValue = errors.New("flatdoc: unsupported document value")

// Normalize converts an arbitrary Go value tree into a Document.
// Nested maps become map[string]any, slices and arrays become []any and
// scalars are coerced to the canonical set listed in the package comment.
// The input is not modified; the result shares no containers with it.
func Normalize(v map[string]any) (Document, error) {
	out, err := normalizeMap(v, nil)
	if err != nil {
		return nil, err
	}
	return Document(out), nil
}

// NormalizeQuery is Normalize for query documents. Values for which keep
// reports true are left untouched and treated as leaves; this is how
// predicate objects survive normalization.
func NormalizeQuery(v map[string]any, keep func(any) bool) (map[string]any, error) {
	return normalizeMap(v, keep)
}

// NormalizeValue normalizes a single scalar or container.
func NormalizeValue(v any) (any, error) {
	return normalize(v, nil)
}

func normalizeMap(m map[string]any, keep func(any) bool) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, elem := range m {
		val, err := normalize(elem, keep)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func normalize(v any, keep func(any) bool) (any, error) {
	if keep != nil && v != nil && keep(v) {
		return v, nil
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case string:
		return val, nil
	case time.Time:
		return FormatTime(val), nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return uintToInt(uint64(val))
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return uintToInt(val)
	case float32:
		return checkFloat(float64(val))
	case float64:
		return checkFloat(val)
	case json.Number:
		return numberValue(val)
	case Document:
		return normalizeMap(map[string]any(val), keep)
	case map[string]any:
		return normalizeMap(val, keep)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := normalize(elem, keep)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}

	return normalizeReflect(reflect.ValueOf(v), keep)
}

// normalizeReflect handles typed containers such as []string or
// map[string]int that YAML decoders and callers commonly produce.
func normalizeReflect(rv reflect.Value, keep func(any) bool) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface(), keep)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			n, err := normalize(rv.Index(i).Interface(), keep)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key type %s", ErrUnsupportedValue, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			n, err := normalize(iter.Value().Interface(), keep)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintToInt(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return checkFloat(rv.Float())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())
	}
}

func uintToInt(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, u)
	}
	return int64(u), nil
}

func checkFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	return f, nil
}

// numberValue keeps integral numbers exact as int64 and falls back to
// float64 for anything with a fraction or exponent.
func numberValue(n json.Number) (any, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: number %s", ErrUnsupportedValue, s)
	}
	return checkFloat(f)
}

// SortedKeys returns the keys of m in RFC 8785 order (UTF-16 code units).
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
// Go's native string comparison is by UTF-8 bytes and orders
// supplementary-plane characters differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
