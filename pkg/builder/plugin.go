package builder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/kode4food/cadence/pkg/api"
)

// Plugin bundles handlers with the sequences they implement
type Plugin struct {
	id        api.TargetID
	handlers  api.Handlers
	sequences []*Sequence
}

// RegisterExport is the export name a Plugin module registers under
const RegisterExport = "register"

var ErrPluginRegistration = errors.New("plugin registration failed")

// NewPlugin creates an empty plugin builder
func NewPlugin(id api.TargetID) *Plugin {
	return &Plugin{id: id, handlers: api.Handlers{}}
}

func (p *Plugin) Handle(name string, h api.Handler) *Plugin {
	res := *p
	res.handlers = maps.Clone(p.handlers)
	res.handlers[name] = h
	return &res
}

func (p *Plugin) Sequence(s *Sequence) *Plugin {
	res := *p
	res.sequences = append(slices.Clone(p.sequences), s.WithPlugin(p.id))
	return &res
}

func (p *Plugin) ID() api.TargetID {
	return p.id
}

// Module returns the plugin as a handler module. Its register export
// mounts every sequence on the executor it receives
func (p *Plugin) Module() *api.Module {
	return &api.Module{
		Handlers: maps.Clone(p.handlers),
		Exports: map[string]api.RegisterFunc{
			RegisterExport: p.Register,
		},
	}
}

// Register builds and mounts every sequence. All sequences are attempted;
// the failures are joined
func (p *Plugin) Register(ctx context.Context, exec api.Executor) error {
	var errs []error
	for _, s := range p.sequences {
		seq, err := s.Build()
		if err == nil {
			err = exec.Mount(ctx, seq, p.handlers, p.id)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s/%s: %w",
				ErrPluginRegistration, p.id, s.ID(), err))
		}
	}
	return errors.Join(errs...)
}
