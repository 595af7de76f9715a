package channel

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ReadString returns the first non-empty string value under any of the
// given keys, coercing non-string scalars through JSON.
func ReadString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		default:
			encoded, err := json.Marshal(v)
			if err == nil {
				if trimmed := strings.Trim(string(encoded), "\""); trimmed != "" && trimmed != "null" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// ReadBool returns the boolean under any of the given keys, accepting
// real booleans and "true"/"false" strings.
func ReadBool(raw map[string]any, keys ...string) bool {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case bool:
			return v
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err == nil {
				return parsed
			}
		}
	}
	return false
}

// ReadInt returns the integer under any of the given keys, accepting
// ints, floats, and numeric strings.
func ReadInt(raw map[string]any, keys ...string) int {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return parsed
			}
		}
	}
	return 0
}

// ReadStringSlice returns the string list under any of the given keys.
// Scalars become a single-element list; list elements are coerced like
// ReadString and blanks are dropped.
func ReadStringSlice(raw map[string]any, keys ...string) []string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case []string:
			return compactStrings(v)
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					items = append(items, s)
					continue
				}
				encoded, err := json.Marshal(item)
				if err == nil {
					items = append(items, strings.Trim(string(encoded), "\""))
				}
			}
			return compactStrings(items)
		case string:
			return compactStrings([]string{v})
		}
	}
	return nil
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
