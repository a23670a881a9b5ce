package registry

import (
	"fmt"
	"math"
	"sort"

	"github.com/bramble-labs/bramble/blackboard"
)

// FieldType names the expected JSON type of a config field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldBool   FieldType = "bool"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldAny    FieldType = "any"
)

// FieldSpec describes one config field of a node type.
type FieldSpec struct {
	Key         string    `json:"key"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ConfigSchema is the declared config surface of a node type. Validation
// rejects unknown keys, missing required keys, wrong types, and values
// outside an enum.
type ConfigSchema struct {
	Fields []FieldSpec `json:"fields,omitempty"`
}

// Issue is a single config validation problem.
type Issue struct {
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Key == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Key, i.Message)
}

// Field returns the spec for a key, if declared.
func (s ConfigSchema) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks a config map against the schema and returns every
// problem found. A nil or empty result means the config is acceptable.
func (s ConfigSchema) Validate(cfg map[string]any) []Issue {
	var issues []Issue

	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f, ok := s.Field(k)
		if !ok {
			issues = append(issues, Issue{Key: k, Message: "unknown config key"})
			continue
		}
		issues = append(issues, checkValue(f, cfg[k])...)
	}

	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if _, ok := cfg[f.Key]; !ok {
			issues = append(issues, Issue{
				Key:     f.Key,
				Message: fmt.Sprintf("missing required config key %q", f.Key),
			})
		}
	}
	return issues
}

// ApplyDefaults returns a copy of cfg with every absent field that
// declares a default filled in. The input map is not modified.
func (s ConfigSchema) ApplyDefaults(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	for _, f := range s.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := out[f.Key]; !ok {
			out[f.Key] = f.Default
		}
	}
	return out
}

func checkValue(f FieldSpec, v any) []Issue {
	var issues []Issue
	switch f.Type {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			issues = append(issues, Issue{Key: f.Key, Message: fmt.Sprintf("expected string, got %T", v)})
			break
		}
		if len(f.Enum) > 0 && !containsString(f.Enum, s) {
			issues = append(issues, Issue{
				Key:     f.Key,
				Message: fmt.Sprintf("value %q not in allowed set %v", s, f.Enum),
			})
		}
	case FieldBool:
		if _, ok := v.(bool); !ok {
			issues = append(issues, Issue{Key: f.Key, Message: fmt.Sprintf("expected bool, got %T", v)})
		}
	case FieldInt:
		if !isIntValue(v) {
			issues = append(issues, Issue{Key: f.Key, Message: fmt.Sprintf("expected integer, got %T", v)})
		}
	case FieldFloat:
		if _, ok := blackboard.AsFloat(v); !ok {
			issues = append(issues, Issue{Key: f.Key, Message: fmt.Sprintf("expected number, got %T", v)})
		}
	case FieldAny:
		// anything goes
	}
	return issues
}

// isIntValue accepts native integer types plus whole-valued floats,
// since JSON decoding produces float64 for all numbers.
func isIntValue(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == math.Trunc(n)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	default:
		return false
	}
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
