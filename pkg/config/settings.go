package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"webcrawl/pkg/utils"
)

// Settings is the read-only configuration accessor handed to middlewares and
// the engine. Values are resolved from the defaults table overlaid with any
// overrides loaded from a YAML file. Lookups never mutate state; conversion
// failures are fatal errors surfaced at middleware construction time.
type Settings struct {
	values map[string]any
}

// New returns a Settings populated with the built-in defaults.
func New() *Settings {
	values := make(map[string]any, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &Settings{values: values}
}

// NewFromMap returns a Settings with the given overrides layered over the defaults.
func NewFromMap(overrides map[string]any) *Settings {
	s := New()
	for k, v := range overrides {
		s.values[k] = v
	}
	return s
}

// Load reads a YAML file of key/value overrides and layers it over the defaults.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file %q: %w", path, err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("%w: parse settings file %q: %v", utils.ErrConfigValidation, path, err)
	}
	return NewFromMap(overrides), nil
}

// Has reports whether the key is present (default or override).
func (s *Settings) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// GetBool resolves key as a boolean. Accepted string forms are "true"/"false"
// (any case) and "1"/"0"; anything else is a configuration error.
func (s *Settings) GetBool(key string) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		return false, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case int:
		return val != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, fmt.Errorf("%w: key %q: malformed boolean %q", utils.ErrConfigValidation, key, val)
	}
	return false, fmt.Errorf("%w: key %q: cannot convert %T to bool", utils.ErrConfigValidation, key, v)
}

// GetInt resolves key as an integer.
func (s *Settings) GetInt(key string) (int, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, nil
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("%w: key %q: malformed integer %q", utils.ErrConfigValidation, key, val)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: key %q: cannot convert %T to int", utils.ErrConfigValidation, key, v)
}

// GetFloat resolves key as a float64.
func (s *Settings) GetFloat(key string) (float64, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: key %q: malformed float %q", utils.ErrConfigValidation, key, val)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: key %q: cannot convert %T to float", utils.ErrConfigValidation, key, v)
}

// GetString resolves key as a string.
func (s *Settings) GetString(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", nil
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	}
	return "", fmt.Errorf("%w: key %q: cannot convert %T to string", utils.ErrConfigValidation, key, v)
}

// GetList resolves key as a list of strings. A scalar string splits on commas,
// matching the way list settings are commonly overridden on a command line.
func (s *Settings) GetList(key string) ([]string, error) {
	v, ok := s.values[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	return nil, fmt.Errorf("%w: key %q: cannot convert %T to list", utils.ErrConfigValidation, key, v)
}

// GetIntList resolves key as a list of integers, converting string elements.
func (s *Settings) GetIntList(key string) ([]int, error) {
	// Direct []int values (the defaults table) bypass the string path
	if v, ok := s.values[key].([]int); ok {
		return append([]int(nil), v...), nil
	}
	items, err := s.GetList(key)
	if err != nil {
		return nil, err
	}
	if items == nil {
		return nil, nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, convErr := strconv.Atoi(item)
		if convErr != nil {
			return nil, fmt.Errorf("%w: key %q: malformed integer element %q", utils.ErrConfigValidation, key, item)
		}
		out = append(out, n)
	}
	return out, nil
}

// GetDict resolves key as a nested string-keyed map.
func (s *Settings) GetDict(key string) (map[string]any, error) {
	v, ok := s.values[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case map[string]any:
		return val, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: key %q: cannot convert %T to dict", utils.ErrConfigValidation, key, v)
}
