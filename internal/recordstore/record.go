package recordstore

import (
	"encoding/json"
	"strconv"
)

// Record is one stored row in its wire shape: field name to JSON value.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() string {
	return r.String("id")
}

// String returns key as a string, or "" when absent or not a string.
func (r Record) String(key string) string {
	v, _ := r[key].(string)
	return v
}

// Number returns key as a float64. JSON numbers, Go integers and numeric
// strings are accepted; anything else yields 0.
func (r Record) Number(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Int returns key truncated to an int.
func (r Record) Int(key string) int {
	return int(r.Number(key))
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
