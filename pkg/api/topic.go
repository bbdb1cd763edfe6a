package api

import (
	"errors"
	"fmt"
)

type (
	// TopicName identifies a logical event channel
	TopicName string

	// TargetID identifies an independently registered plugin
	TargetID string

	// OperationID identifies an operation owned by a target. For mounted
	// sequences this is the sequence id
	OperationID string

	// Route is a (target, operation) pair a topic dispatches to
	Route struct {
		Target    TargetID    `json:"pluginId"`
		Operation OperationID `json:"sequenceId"`
	}

	// DeliveryPolicy limits how often a topic is delivered. When both
	// values are set, throttling takes precedence
	DeliveryPolicy struct {
		ThrottleMs int64 `json:"throttleMs,omitempty"`
		DebounceMs int64 `json:"debounceMs,omitempty"`
	}

	// PolicyMode is the effective delivery mode of a DeliveryPolicy
	PolicyMode int

	// TopicDef describes a topic: its routes, payload schema, delivery
	// policy and whether late subscribers receive the last payload
	TopicDef struct {
		Schema *PayloadSchema  `json:"payloadSchema,omitempty"`
		Policy *DeliveryPolicy `json:"perf,omitempty"`
		Name   TopicName       `json:"-"`
		Notes  string          `json:"notes,omitempty"`
		Routes []Route         `json:"routes"`
		Replay bool            `json:"replay,omitempty"`
	}

	// TopicsManifest is the external document topic definitions load from
	TopicsManifest struct {
		Topics  map[TopicName]*TopicDef `json:"topics"`
		Version string                  `json:"version,omitempty"`
	}
)

const (
	PolicyNone PolicyMode = iota
	PolicyThrottle
	PolicyDebounce
)

var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrTopicNameEmpty = errors.New("topic name empty")
	ErrRouteInvalid   = errors.New("route requires target and operation")
	ErrInvalidPolicy  = errors.New("delivery policy intervals cannot be negative")
)

func (m PolicyMode) String() string {
	switch m {
	case PolicyThrottle:
		return "throttle"
	case PolicyDebounce:
		return "debounce"
	default:
		return "none"
	}
}

// Mode reports the effective delivery mode
func (p *DeliveryPolicy) Mode() PolicyMode {
	switch {
	case p == nil:
		return PolicyNone
	case p.ThrottleMs > 0:
		return PolicyThrottle
	case p.DebounceMs > 0:
		return PolicyDebounce
	default:
		return PolicyNone
	}
}

// Validate checks that the topic definition is well-formed
func (t *TopicDef) Validate() error {
	if t.Name == "" {
		return ErrTopicNameEmpty
	}
	for i, r := range t.Routes {
		if r.Target == "" || r.Operation == "" {
			return fmt.Errorf("%w: topic %s route %d",
				ErrRouteInvalid, t.Name, i)
		}
	}
	if t.Policy != nil && (t.Policy.ThrottleMs < 0 || t.Policy.DebounceMs < 0) {
		return fmt.Errorf("%w: topic %s", ErrInvalidPolicy, t.Name)
	}
	if t.Schema != nil {
		if err := t.Schema.CheckTypes(); err != nil {
			return fmt.Errorf("topic %s: %w", t.Name, err)
		}
	}
	return nil
}

// Normalize assigns map keys as topic names and validates every topic.
// Invalid topics are removed and reported
func (m *TopicsManifest) Normalize() []error {
	if m.Topics == nil {
		m.Topics = map[TopicName]*TopicDef{}
		return nil
	}
	var errs []error
	for name, def := range m.Topics {
		if def == nil {
			delete(m.Topics, name)
			continue
		}
		def.Name = name
		if err := def.Validate(); err != nil {
			errs = append(errs, err)
			delete(m.Topics, name)
		}
	}
	return errs
}
