package check

import (
	"fmt"
	"time"
)

// The helpers below read typed values out of the raw config maps handed to
// factories. Values decoded from JSON arrive as string, float64, bool,
// []any and map[string]any; Go callers may also pass native slices.

// String returns config[key] as a string, or def if absent.
func String(config map[string]any, key, def string) (string, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("'%s' must be a string, got %T", key, v)
	}
	return s, nil
}

// Bool returns config[key] as a bool, or def if absent.
func Bool(config map[string]any, key string, def bool) (bool, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("'%s' must be a bool, got %T", key, v)
	}
	return b, nil
}

// Number returns config[key] as a float64, or def if absent.
func Number(config map[string]any, key string, def float64) (float64, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("'%s' must be a number, got %T", key, v)
	}
}

// Duration returns config[key] parsed with time.ParseDuration, or def if
// absent.
func Duration(config map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("'%s' must be a duration string, got %T", key, v)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

// StringSlice returns config[key] as a list of strings. A missing key
// yields nil.
func StringSlice(config map[string]any, key string) ([]string, error) {
	raw, ok := config[key]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("'%s' items must be strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("'%s' must be a list, got %T", key, raw)
	}
}

// Map returns config[key] as an object. A missing key yields nil.
func Map(config map[string]any, key string) (map[string]any, error) {
	raw, ok := config[key]
	if !ok {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("'%s' must be an object, got %T", key, raw)
	}
	return m, nil
}
