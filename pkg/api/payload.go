package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Payload is the data carried by a published topic or a route invocation
type Payload map[string]any

var ErrMarshalPayload = errors.New("failed to marshal payload")

// Set creates a new Payload with the specified key-value pair added
func (p Payload) Set(key string, value any) Payload {
	if p == nil {
		return Payload{key: value}
	}
	res := maps.Clone(p)
	res[key] = value
	return res
}

// Merge returns a new Payload containing p overlaid with other
func (p Payload) Merge(other Payload) Payload {
	res := make(Payload, len(p)+len(other))
	maps.Copy(res, p)
	maps.Copy(res, other)
	return res
}

// Clone returns a shallow copy of the Payload
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}

// GetString retrieves a string value, returning defaultValue if not found or
// wrong type
func (p Payload) GetString(key string, defaultValue string) string {
	if str, ok := p[key].(string); ok {
		return str
	}
	return defaultValue
}

// GetBool retrieves a boolean value, returning defaultValue if not found or
// wrong type
func (p Payload) GetBool(key string, defaultValue bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return defaultValue
}

// GetInt retrieves an integer value, returning defaultValue if not found or
// wrong type. Supports both int and float64 (converting from JSON numbers)
func (p Payload) GetInt(key string, defaultValue int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

// JSON encodes the Payload, treating nil as an empty object
func (p Payload) JSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshalPayload, err)
	}
	return data, nil
}
