package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Attributes is the mutable part of a device: field name to value.
type Attributes map[string]any

// NormalizeAttributes copies attrs into the canonical value set shared by all codecs:
// int64 (uint64 above MaxInt64), float64, bool, string, []any and map[string]any.
// A float with no fractional part is an integer, since JSON cannot tell 1.0 from 1.
// Byte slices, NaN and infinities have no common encoding and are rejected.
func NormalizeAttributes(attrs map[string]any) (Attributes, error) {
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// Merge overwrites same-named attributes with the ones from src.
func (a Attributes) Merge(src Attributes) {
	for k, v := range src {
		a[k] = v
	}
}

func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64:
		return x, nil
	case float64:
		return normalizeFloat(x)
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return normalizeUint(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normalizeUint(x), nil
	case float32:
		return normalizeFloat(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return normalizeUint(u), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return normalizeFloat(f)
	case []byte:
		return nil, errors.New("byte slices are not supported, encode them as a string")
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			nv, err := normalizeValue(el)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		return normalizeMap(x)
	case Attributes:
		return normalizeMap(x)
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, el := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key %v", k)
			}
			m[ks] = el
		}
		return normalizeMap(m)
	}

	// typed slices such as []string or []int
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			nv, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %T", v)
}

func normalizeMap(m map[string]any) (any, error) {
	out, err := NormalizeAttributes(m)
	if err != nil {
		return nil, err
	}
	return map[string]any(out), nil
}

func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value %v", f)
	}
	if f != math.Trunc(f) {
		return f, nil
	}
	switch {
	case f >= -(1<<63) && f < 1<<63:
		return int64(f), nil
	case f >= 0 && f < 1<<64:
		return uint64(f), nil
	}
	return f, nil
}

func normalizeUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = cloneValue(el)
		}
		return out
	case map[string]any:
		return map[string]any(Attributes(x).Clone())
	case Attributes:
		return x.Clone()
	}
	return v
}
