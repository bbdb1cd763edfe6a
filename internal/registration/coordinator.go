package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kode4food/cadence/internal/catalog"
	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

// Coordinator runs plugin runtime registrations and catalog loading once
// per State, then publishes readiness
type Coordinator struct {
	state    *State
	loader   *catalog.Loader
	resolver catalog.ModuleResolver
	config   config.RegistrationConfig
	now      func() time.Time
}

var ErrRegistrationPanicked = errors.New("runtime registration panicked")

// NewCoordinator creates a Coordinator recording progress in state
func NewCoordinator(
	state *State, loader *catalog.Loader, resolver catalog.ModuleResolver,
	cfg config.RegistrationConfig,
) *Coordinator {
	return &Coordinator{
		state:    state,
		loader:   loader,
		resolver: resolver,
		config:   cfg,
		now:      time.Now,
	}
}

// State returns the registration state the Coordinator reports to
func (c *Coordinator) State() *State {
	return c.state
}

// RegisterAll registers every plugin with exec. Only the first call on a
// State does any work; later calls return nil immediately. Individual
// plugin failures are logged, only cancellation of ctx is returned
func (c *Coordinator) RegisterAll(ctx context.Context, exec api.Executor) error {
	if !c.state.begin() {
		slog.Debug("Registration already started",
			slog.String("phase", c.state.Phase().String()))
		return nil
	}
	if exec == nil {
		c.state.abort()
		return api.ErrNoExecutor
	}
	start := c.now()

	manifest, err := c.loader.Manifest(ctx)
	if err != nil {
		slog.Warn("Plugin manifest unavailable", log.Error(err))
		manifest = &api.PluginManifest{}
	}

	for _, p := range c.runtimePlugins(manifest) {
		if err := ctx.Err(); err != nil {
			c.state.abort()
			return err
		}
		c.registerRuntime(ctx, exec, p)
	}

	if _, err := c.loader.LoadCatalogs(ctx, exec, manifest.IDs()...); err != nil {
		c.state.abort()
		return err
	}
	c.reconcile(ctx, exec)

	mounts := c.loader.Mounts()
	info := api.ReadyInfo{
		CompletedAt: c.now(),
		Plugins:     mounts.Targets(),
		Discovered:  mounts.Discovered(),
		Sequences:   mounts.Sequences(),
	}
	c.state.complete(info)
	slog.Info("Registration complete",
		slog.Int("plugins", len(info.Plugins)),
		slog.Int("sequences", len(info.Sequences)),
		slog.Duration("elapsed", info.CompletedAt.Sub(start)))
	return nil
}

// IsReady reports whether registration has completed
func (c *Coordinator) IsReady() bool {
	return c.state.IsReady()
}

// WhenReady returns the channel closed when registration completes
func (c *Coordinator) WhenReady() <-chan struct{} {
	return c.state.WhenReady()
}

// Wait blocks until registration completes or ctx ends
func (c *Coordinator) Wait(ctx context.Context) error {
	return c.state.Wait(ctx)
}

// Info returns the readiness metadata once registration has completed
func (c *Coordinator) Info() (api.ReadyInfo, bool) {
	return c.state.Info()
}

// runtimePlugins orders the plugins declaring a runtime export: priority
// ids first, in configured order, then the rest in manifest order
func (c *Coordinator) runtimePlugins(m *api.PluginManifest) []api.PluginDecl {
	var first, rest []api.PluginDecl
	for _, p := range m.Plugins {
		if p.Runtime == nil || p.ID == "" {
			continue
		}
		if slices.Contains(c.config.Priority, p.ID) {
			first = append(first, p)
			continue
		}
		rest = append(rest, p)
	}
	slices.SortStableFunc(first, func(a, b api.PluginDecl) int {
		return slices.Index(c.config.Priority, a.ID) -
			slices.Index(c.config.Priority, b.ID)
	})
	return append(first, rest...)
}

func (c *Coordinator) registerRuntime(
	ctx context.Context, exec api.Executor, p api.PluginDecl,
) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%w: %v", ErrRegistrationPanicked, rec)
			}
		}()
		mod, err := c.resolver.Resolve(ctx, p.Runtime.Module)
		if err != nil {
			return err
		}
		register, ok := mod.Exports[p.Runtime.Export]
		if !ok {
			return fmt.Errorf("%w: %s in %s",
				api.ErrMissingExport, p.Runtime.Export, p.Runtime.Module)
		}
		return register(ctx, &recordingExecutor{
			Executor: exec,
			mounts:   c.loader.Mounts(),
		})
	}()
	if err != nil {
		slog.Warn("Runtime registration failed",
			log.TargetID(p.ID),
			log.Module(p.Runtime.Module),
			log.Error(err))
		return
	}
	slog.Info("Runtime registered",
		log.TargetID(p.ID),
		log.Module(p.Runtime.Module))
}

// reconcile remounts required sequences that catalog loading left missing
func (c *Coordinator) reconcile(ctx context.Context, exec api.Executor) {
	mounts := c.loader.Mounts()
	for _, req := range c.config.Required {
		if mounts.IsMounted(req.ID) {
			continue
		}
		id, err := c.loader.MountSequence(ctx, exec, req.Target,
			api.CatalogEntryRef{File: req.File, Handlers: req.Handlers},
		)
		if err != nil {
			slog.Warn("Required sequence not mounted",
				log.SequenceID(req.ID),
				log.TargetID(req.Target),
				log.Error(err))
			continue
		}
		if id != req.ID {
			slog.Warn("Required sequence file mounted another id",
				log.SequenceID(req.ID),
				slog.String("mounted", string(id)))
			continue
		}
		slog.Info("Required sequence remounted",
			log.SequenceID(req.ID),
			log.TargetID(req.Target))
	}
}
