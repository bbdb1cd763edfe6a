package api

import (
	"errors"
	"fmt"
)

type (
	// SequenceID identifies a mounted sequence
	SequenceID string

	// Sequence is a declarative, ordered unit of work: movements of beats
	Sequence struct {
		ID        SequenceID `json:"id"`
		PluginID  TargetID   `json:"pluginId,omitempty"`
		Name      string     `json:"name,omitempty"`
		Category  string     `json:"category,omitempty"`
		Movements []Movement `json:"movements"`
	}

	// Movement is a named, ordered group of beats
	Movement struct {
		Name  string `json:"name,omitempty"`
		Beats []Beat `json:"beats"`
	}

	// Beat describes one operation within a movement. Handler names the
	// function in the resolved handler module
	Beat struct {
		Event    string `json:"event,omitempty"`
		Title    string `json:"title,omitempty"`
		Handler  string `json:"handler"`
		Dynamics string `json:"dynamics,omitempty"`
		Timing   string `json:"timing,omitempty"`
		Kind     string `json:"kind,omitempty"`
		Beat     int    `json:"beat"`
	}
)

var (
	ErrSequenceIDEmpty     = errors.New("sequence ID empty")
	ErrSequenceNoMovements = errors.New("sequence has no movements")
	ErrBeatHandlerEmpty    = errors.New("beat handler empty")
)

// Validate checks that the sequence is well-formed
func (s *Sequence) Validate() error {
	if s.ID == "" {
		return ErrSequenceIDEmpty
	}
	if len(s.Movements) == 0 {
		return fmt.Errorf("%w: %s", ErrSequenceNoMovements, s.ID)
	}
	for mi, m := range s.Movements {
		for bi, b := range m.Beats {
			if b.Handler == "" {
				return fmt.Errorf("%w: %s movement %d beat %d",
					ErrBeatHandlerEmpty, s.ID, mi, bi)
			}
		}
	}
	return nil
}

// HandlerNames returns the distinct handler names in beat order
func (s *Sequence) HandlerNames() []string {
	seen := map[string]struct{}{}
	var res []string
	for _, m := range s.Movements {
		for _, b := range m.Beats {
			if _, ok := seen[b.Handler]; ok {
				continue
			}
			seen[b.Handler] = struct{}{}
			res = append(res, b.Handler)
		}
	}
	return res
}

// MissingHandlers lists the handler names the sequence references that are
// absent from handlers
func (s *Sequence) MissingHandlers(handlers Handlers) []string {
	var res []string
	for _, name := range s.HandlerNames() {
		if _, ok := handlers[name]; !ok {
			res = append(res, name)
		}
	}
	return res
}
