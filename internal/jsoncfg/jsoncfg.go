// Package jsoncfg decodes the free-form JSON configuration blobs stored on
// billing orders and addons.
package jsoncfg

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse decodes raw into an object. ok is false when raw is blank, malformed,
// or not a JSON object. Numbers become int64 when integral, float64 otherwise.
func Parse(raw string) (map[string]any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	obj, err := Decode(raw)
	return obj, err == nil
}

// Decode is Parse returning the decode error, for callers that log it.
func Decode(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	obj, ok := normalize(v).(map[string]any)
	if !ok {
		return nil, errors.Errorf("decode config: JSON %s is not an object", typeName(v))
	}
	return obj, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
				return int64(f)
			}
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

// Scalar stringifies a decoded scalar. Objects, arrays and null report false.
// Floats are rendered without an exponent.
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// Value returns the scalar stored at key, nil-safe. Null and nested values
// are treated as absent.
func Value(cfg map[string]any, key string) (any, bool) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, false
	}
	return v, true
}

// String returns the non-empty string form of the scalar stored at key.
func String(cfg map[string]any, key string) (string, bool) {
	v, ok := Value(cfg, key)
	if !ok {
		return "", false
	}
	s, ok := Scalar(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func typeName(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case nil:
		return "null"
	}
	return "number"
}
