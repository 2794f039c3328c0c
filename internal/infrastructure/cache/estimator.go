package cache

import (
	"encoding/json"
	"reflect"
)

const (
	// scalarSize is the fixed cost charged for numbers and booleans.
	scalarSize = 8
	// containerOverhead is added per slice, map or struct.
	containerOverhead = 16
	// fallbackSize is charged for values the walk cannot inspect.
	fallbackSize = 64
	// maxDepth bounds the recursive walk against cyclic values.
	maxDepth = 8
)

// EstimateSize returns a best-effort byte estimate for a value. It is a
// capacity-accounting signal only, never a correctness guarantee or a
// hard memory bound: strings count two bytes per byte of content,
// scalars a fixed cost, containers the sum of their children plus
// overhead. Values the reflective walk cannot price fall back to their
// JSON encoding length.
func EstimateSize(v any) int64 {
	if v == nil {
		return 0
	}
	if n, ok := estimateValue(reflect.ValueOf(v), 0); ok {
		return n
	}
	if data, err := json.Marshal(v); err == nil {
		return int64(len(data))
	}
	return fallbackSize
}

func estimateValue(rv reflect.Value, depth int) (int64, bool) {
	if !rv.IsValid() {
		return 0, true
	}
	if depth > maxDepth {
		return fallbackSize, true
	}

	switch rv.Kind() {
	case reflect.String:
		return 2 * int64(len(rv.String())), true

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return scalarSize, true

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return 0, true
		}
		return estimateValue(rv.Elem(), depth+1)

	case reflect.Slice:
		if rv.IsNil() {
			return 0, true
		}
		fallthrough
	case reflect.Array:
		sum := int64(containerOverhead)
		for i := 0; i < rv.Len(); i++ {
			n, ok := estimateValue(rv.Index(i), depth+1)
			if !ok {
				return 0, false
			}
			sum += n
		}
		return sum, true

	case reflect.Map:
		if rv.IsNil() {
			return 0, true
		}
		sum := int64(containerOverhead)
		iter := rv.MapRange()
		for iter.Next() {
			k, ok := estimateValue(iter.Key(), depth+1)
			if !ok {
				return 0, false
			}
			v, ok := estimateValue(iter.Value(), depth+1)
			if !ok {
				return 0, false
			}
			sum += k + v
		}
		return sum, true

	case reflect.Struct:
		sum := int64(containerOverhead)
		for i := 0; i < rv.NumField(); i++ {
			n, ok := estimateValue(rv.Field(i), depth+1)
			if !ok {
				return 0, false
			}
			sum += n
		}
		return sum, true

	default:
		// Chan, Func, UnsafePointer: let the caller try JSON.
		return 0, false
	}
}
