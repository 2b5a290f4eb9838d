package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// JSON PAYLOAD EXTRACTION UTILITIES
// =============================================================================
//
// These functions provide safe, type-aware extraction from decoded LLM JSON
// payloads. They replace bare type assertions that panic on type mismatch.
//
// json.Unmarshal into map[string]interface{} yields only these Go types:
//   - string
//   - float64 (ALL JSON numbers, including integers)
//   - bool
//   - nil
//   - []interface{}
//   - map[string]interface{}
//
// Models additionally bend the rules in predictable ways: numbers arrive as
// quoted strings ("0.42"), booleans as "true"/"yes", and single values where
// an array was requested. The extractors absorb all of that.

// ExtractString extracts a string representation from a decoded JSON value.
func ExtractString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

// ExtractFloat64 extracts a float64 from a decoded JSON value.
// Returns (value, true) on success, (0, false) if the type is incompatible.
func ExtractFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ExtractInt extracts an int from a decoded JSON value. Fractional floats
// are truncated toward zero, matching how models round-trip integers.
// Returns (value, true) on success, (0, false) if the type is incompatible.
func ExtractInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case int64:
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			return int(f), ferr == nil
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(x), 64)
			return int(f), ferr == nil
		}
		return n, true
	default:
		return 0, false
	}
}

// ExtractBool extracts a boolean from a decoded JSON value. String forms
// "true"/"yes"/"1" and "false"/"no"/"0" are accepted case-insensitively.
// Returns (value, true) on success, (false, false) if the type is incompatible.
func ExtractBool(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		return false, false
	case float64:
		if x == 1 {
			return true, true
		}
		if x == 0 {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// ExtractStringSlice extracts a slice of strings from a decoded JSON value.
// A bare string becomes a one-element slice; models frequently collapse
// single-element arrays. Returns nil for incompatible types.
func ExtractStringSlice(v interface{}) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := ExtractString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}

// ExtractMap extracts a JSON object from a decoded value.
// Returns (value, true) on success, (nil, false) if the type is incompatible.
func ExtractMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// FieldString is a convenience wrapper that extracts a string from m[key].
// Returns "" if the key is absent.
func FieldString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	return ExtractString(v)
}

// FieldFloat64 is a convenience wrapper that extracts a float64 from m[key].
// Returns (0, false) if the key is absent.
func FieldFloat64(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return ExtractFloat64(v)
}

// FieldInt is a convenience wrapper that extracts an int from m[key].
// Returns (0, false) if the key is absent.
func FieldInt(m map[string]interface{}, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return ExtractInt(v)
}

// FieldBool is a convenience wrapper that extracts a bool from m[key].
// Returns (false, false) if the key is absent.
func FieldBool(m map[string]interface{}, key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	return ExtractBool(v)
}

// FieldStringSlice is a convenience wrapper that extracts a string slice
// from m[key]. Returns nil if the key is absent.
func FieldStringSlice(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return ExtractStringSlice(v)
}
