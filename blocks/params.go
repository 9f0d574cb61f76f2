package blocks

import (
	"fmt"
	"math"
)

// Params are the loosely typed settings of one block as they come out of a
// config file. Numbers may arrive as int, int64, uint64 or float64 and lists
// as []any, depending on the decoder.
type Params map[string]any

// Int returns key as an integer, or def when the key is absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("param %q: %v is not an integer", key, v)
	}
	return int(n), nil
}

// Float returns key as a float64, or def when the key is absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return n, nil
}

// String returns key as a string, or def when the key is absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %q: want string, got %T", key, v)
	}
	return s, nil
}

// Bool returns key as a bool, or def when the key is absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %q: want bool, got %T", key, v)
	}
	return b, nil
}

// Floats returns key as a list of float32 values. A missing key is an error.
func (p Params) Floats(key string) ([]float32, error) {
	v, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("param %q is required", key)
	}
	switch list := v.(type) {
	case []float32:
		return list, nil
	case []float64:
		out := make([]float32, len(list))
		for i, x := range list {
			out[i] = float32(x)
		}
		return out, nil
	case []any:
		out := make([]float32, len(list))
		for i, x := range list {
			f, err := toFloat(x)
			if err != nil {
				return nil, fmt.Errorf("param %q[%d]: %w", key, i, err)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q: want list of numbers, got %T", key, v)
	}
}

// Maps returns key as a list of nested parameter sets. A missing key yields nil.
func (p Params) Maps(key string) ([]Params, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("param %q: want list, got %T", key, v)
	}
	out := make([]Params, len(list))
	for i, x := range list {
		m, ok := x.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("param %q[%d]: want map, got %T", key, i, x)
		}
		out[i] = Params(m)
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}
