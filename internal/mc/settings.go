package mc

import (
	"fmt"

	"github.com/abmazitov/heox/internal/protocol"
)

func floatSetting(settings protocol.Settings, key string) (float64, bool, error) {
	raw, ok := settings[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("setting %s must be a number, got %T", key, raw)
	}
}

func boolSetting(settings protocol.Settings, key string) (bool, error) {
	raw, ok := settings[key]
	if !ok {
		return false, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("setting %s must be a boolean, got %T", key, raw)
	}
	return v, nil
}

func stringListSetting(settings protocol.Settings, key string) ([]string, error) {
	raw, ok := settings[key]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("setting %s must be a list of strings, got %T entry", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("setting %s must be a list of strings, got %T", key, raw)
	}
}

func floatMapSetting(settings protocol.Settings, key string) (map[string]float64, error) {
	raw, ok := settings[key]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]float64:
		out := make(map[string]float64, len(v))
		for k, f := range v {
			out[k] = f
		}
		return out, nil
	case map[string]any:
		out := make(map[string]float64, len(v))
		for k, item := range v {
			switch f := item.(type) {
			case float64:
				out[k] = f
			case int:
				out[k] = float64(f)
			default:
				return nil, fmt.Errorf("setting %s.%s must be a number, got %T", key, k, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("setting %s must be a map of species to numbers, got %T", key, raw)
	}
}
