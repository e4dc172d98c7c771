package collections

import (
	"strconv"
	"strings"
)

// Helpers for navigating decoded JSON payloads. Feed values are loosely
// typed: numbers arrive as float64 or numeric strings depending on topic.

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// mapValues returns the values of a payload node that is either a JSON array
// or a JSON object (the feed uses both encodings for the same topics).
func mapValues(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		values := make([]any, 0, len(m))
		for _, k := range sortedKeys(m) {
			values = append(values, m[k])
		}
		return values
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Numeric keys sort numerically so iteration follows feed order.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keyLess(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func keyLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
