package builder

import (
	"regexp"
	"slices"
	"strings"

	"github.com/kode4food/cadence/pkg/api"
)

// Sequence is an immutable sequence builder. Every method returns a copy
type Sequence struct {
	id        api.SequenceID
	plugin    api.TargetID
	name      string
	category  string
	movements []api.Movement
}

var (
	camelCaseRegex = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	delimiterRegex = regexp.MustCompile(`[\s_.]+`)
)

// NewSequence creates a sequence builder whose id is derived from name
func NewSequence(name string) *Sequence {
	return &Sequence{
		id:   api.SequenceID(toKebabCase(name)),
		name: name,
	}
}

func (s *Sequence) WithID(id api.SequenceID) *Sequence {
	res := *s
	res.id = id
	return &res
}

func (s *Sequence) WithPlugin(id api.TargetID) *Sequence {
	res := *s
	res.plugin = id
	return &res
}

func (s *Sequence) WithCategory(category string) *Sequence {
	res := *s
	res.category = category
	return &res
}

// Movement starts a new named movement. Beats added afterwards belong to it
func (s *Sequence) Movement(name string) *Sequence {
	res := *s
	res.movements = append(slices.Clone(s.movements), api.Movement{Name: name})
	return &res
}

// Beat appends a beat calling handler to the current movement, starting an
// unnamed movement if there is none
func (s *Sequence) Beat(event, handler string) *Sequence {
	res := *s
	res.movements = cloneMovements(s.movements)
	if len(res.movements) == 0 {
		res.movements = []api.Movement{{}}
	}
	last := &res.movements[len(res.movements)-1]
	last.Beats = append(last.Beats, api.Beat{
		Beat:    len(last.Beats) + 1,
		Event:   event,
		Handler: handler,
	})
	return &res
}

func (s *Sequence) ID() api.SequenceID {
	return s.id
}

func (s *Sequence) Build() (*api.Sequence, error) {
	seq := &api.Sequence{
		ID:        s.id,
		PluginID:  s.plugin,
		Name:      s.name,
		Category:  s.category,
		Movements: cloneMovements(s.movements),
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

func cloneMovements(m []api.Movement) []api.Movement {
	res := slices.Clone(m)
	for i := range res {
		res[i].Beats = slices.Clone(res[i].Beats)
	}
	return res
}

func toKebabCase(s string) string {
	s = camelCaseRegex.ReplaceAllString(s, "$1-$2")
	s = delimiterRegex.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.ToLower(s)
}
