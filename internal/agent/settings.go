package agent

import (
	"fmt"
	"time"
)

// Settings is the opaque per-agent configuration map from the definition.
// The supervisor passes it through untouched; only the concrete kind
// interprets it, via these accessors.
type Settings map[string]interface{}

// String returns the string value for key, or fallback if absent or not a
// string.
func (s Settings) String(key, fallback string) string {
	if v, ok := s[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value for key, or fallback. YAML decodes numbers
// as int; JSON round-trips produce float64, so both are accepted.
func (s Settings) Int(key string, fallback int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// Bool returns the boolean value for key, or fallback
func (s Settings) Bool(key string, fallback bool) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return fallback
}

// Duration returns the parsed duration for key (e.g. "5m"), or fallback if
// the key is absent or unparseable.
func (s Settings) Duration(key string, fallback time.Duration) time.Duration {
	raw, ok := s[key].(string)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// Strings returns the string-slice value for key, or nil. YAML sequences
// decode as []interface{}.
func (s Settings) Strings(key string) []string {
	raw, ok := s[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}
