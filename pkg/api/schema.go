package api

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

type (
	// PayloadSchema is the structural contract a topic declares for its
	// payloads
	PayloadSchema struct {
		Properties map[string]*FieldSchema `json:"properties,omitempty"`
		Additional *bool                   `json:"additionalProperties,omitempty"`
		Type       FieldType               `json:"type,omitempty"`
		Required   []string                `json:"required,omitempty"`
	}

	// FieldSchema constrains a single top-level payload field
	FieldSchema struct {
		Type FieldType `json:"type,omitempty"`
		Enum []any     `json:"enum,omitempty"`
	}

	FieldType string

	// PayloadError reports every schema violation found in a payload
	PayloadError struct {
		Topic      TopicName
		Violations []string
	}
)

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeNull    FieldType = "null"
	TypeAny     FieldType = "any"
)

var (
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidFieldType = errors.New("invalid field type")
)

var validFieldTypes = map[FieldType]struct{}{
	TypeString:  {},
	TypeNumber:  {},
	TypeInteger: {},
	TypeBoolean: {},
	TypeObject:  {},
	TypeArray:   {},
	TypeNull:    {},
	TypeAny:     {},
}

// CheckTypes verifies that the schema only uses known field types
func (s *PayloadSchema) CheckTypes() error {
	for name, f := range s.Properties {
		if f == nil || f.Type == "" {
			continue
		}
		if _, ok := validFieldTypes[f.Type]; !ok {
			return fmt.Errorf("%w: %s for field %q",
				ErrInvalidFieldType, f.Type, name)
		}
	}
	return nil
}

// Violations checks the payload against the schema and returns every
// violation found, in a stable order. An empty result means the payload
// conforms
func (s *PayloadSchema) Violations(p Payload) []string {
	if s == nil {
		return nil
	}
	data, err := p.JSON()
	if err != nil {
		return []string{err.Error()}
	}

	var res []string
	for _, name := range s.Required {
		if !gjson.GetBytes(data, escapeKey(name)).Exists() {
			res = append(res, fmt.Sprintf("missing required field %q", name))
		}
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		f := s.Properties[name]
		result := gjson.GetBytes(data, escapeKey(name))
		if f == nil || !result.Exists() {
			continue
		}
		if err := checkFieldType(result, f.Type); err != nil {
			res = append(res, fmt.Sprintf("field %q %s", name, err))
			continue
		}
		if len(f.Enum) > 0 && !matchesEnum(result, f.Enum) {
			res = append(res, fmt.Sprintf("field %q must be one of %v",
				name, f.Enum))
		}
	}

	if s.Additional != nil && !*s.Additional {
		keys := make([]string, 0, len(p))
		for k := range p {
			if _, ok := s.Properties[k]; !ok {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			res = append(res, fmt.Sprintf("unexpected field %q", k))
		}
	}
	return res
}

// Error implements the error interface
func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s for topic %s: %s", ErrInvalidPayload, e.Topic,
		strings.Join(e.Violations, "; "))
}

// Unwrap allows errors.Is(err, ErrInvalidPayload)
func (e *PayloadError) Unwrap() error {
	return ErrInvalidPayload
}

func checkFieldType(result gjson.Result, typ FieldType) error {
	switch typ {
	case "", TypeAny:
		return nil
	case TypeString:
		if result.Type != gjson.String {
			return errors.New("must be a string")
		}
	case TypeNumber:
		if result.Type != gjson.Number {
			return errors.New("must be a number")
		}
	case TypeInteger:
		if result.Type != gjson.Number || result.Num != math.Trunc(result.Num) {
			return errors.New("must be an integer")
		}
	case TypeBoolean:
		if result.Type != gjson.True && result.Type != gjson.False {
			return errors.New("must be a boolean")
		}
	case TypeObject:
		if !result.IsObject() {
			return errors.New("must be an object")
		}
	case TypeArray:
		if !result.IsArray() {
			return errors.New("must be an array")
		}
	case TypeNull:
		if result.Type != gjson.Null {
			return errors.New("must be null")
		}
	}
	return nil
}

func matchesEnum(result gjson.Result, enum []any) bool {
	val := result.Value()
	for _, e := range enum {
		if reflect.DeepEqual(val, normalizeEnum(e)) {
			return true
		}
	}
	return false
}

func normalizeEnum(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}

func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
