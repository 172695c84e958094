package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SafeMap converts any to map[string]any, returning nil otherwise.
func SafeMap(data any) map[string]any {
	if data == nil {
		return nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

// SafePath walks nested maps by key without panicking.
func SafePath(data any, path ...string) any {
	current := data
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// SafeSlice converts any to []any, returns nil if not a slice.
func SafeSlice(data any) []any {
	if data == nil {
		return nil
	}
	slice, ok := data.([]any)
	if !ok {
		return nil
	}
	return slice
}

// SafeString extracts a string from any. Handles string, json.Number
// and raw numbers, so ids that arrive as numbers still come out as
// strings.
func SafeString(data any) string {
	if data == nil {
		return ""
	}
	switch v := data.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// SafeFloat extracts a float64 from any. Handles float64, json.Number,
// and numeric strings.
func SafeFloat(data any) float64 {
	if data == nil {
		return 0
	}
	switch v := data.(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

// SafeInt extracts an int the same way SafeFloat does, truncating.
func SafeInt(data any) int {
	return int(SafeFloat(data))
}
