package registration_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cadence/internal/catalog"
	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/mounts"
	"github.com/kode4food/cadence/internal/registration"
	"github.com/kode4food/cadence/pkg/api"
)

type (
	testEnv struct {
		Coordinator *registration.Coordinator
		Resolver    *catalog.StaticResolver
		Mounts      *mounts.Registry
		Exec        *countingExecutor
		Files       fstest.MapFS
	}

	countingExecutor struct {
		mu     sync.Mutex
		mounts []api.SequenceID
		events []string
	}
)

func (e *countingExecutor) Invoke(
	context.Context, api.TargetID, api.OperationID, api.Payload,
) error {
	return nil
}

func (e *countingExecutor) Mount(
	_ context.Context, seq *api.Sequence, _ api.Handlers, _ api.TargetID,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mounts = append(e.mounts, seq.ID)
	return nil
}

func (e *countingExecutor) record(ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *countingExecutor) Mounted() []api.SequenceID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.SequenceID(nil), e.mounts...)
}

func sequence(id, handler string) []byte {
	return fmt.Appendf(nil,
		`{"id":%q,"movements":[{"beats":[{"beat":1,"handler":%q}]}]}`,
		id, handler,
	)
}

func newEnv(
	t *testing.T, state *registration.State, cfg config.RegistrationConfig,
) *testEnv {
	t.Helper()
	files := fstest.MapFS{
		"plugin-manifest.json": {Data: []byte(`{"plugins":[
			{"id":"canvas","runtime":{"module":"canvas/runtime","export":"register"}},
			{"id":"panel","runtime":{"module":"panel/runtime","export":"register"}},
			{"id":"broken","runtime":{"module":"broken/runtime","export":"missing"}},
			{"id":"library"}
		]}`)},
		"canvas/index.json": {Data: []byte(`{"sequences":[
			{"file":"select.json","handlersPath":"handlers"}
		]}`)},
		"canvas/select.json": {Data: sequence("canvas-select", "select")},
		"canvas/extra.json":  {Data: sequence("canvas-extra", "select")},
	}
	resolver := catalog.NewStaticResolver()
	resolver.RegisterModule("handlers", &api.Module{Handlers: api.Handlers{
		"select": func(context.Context, api.Payload) (api.Payload, error) {
			return nil, nil
		},
	}})

	exec := &countingExecutor{}
	for _, id := range []string{"canvas", "panel"} {
		resolver.RegisterModule(id+"/runtime", &api.Module{
			Exports: map[string]api.RegisterFunc{
				"register": func(context.Context, api.Executor) error {
					exec.record(id)
					return nil
				},
			},
		})
	}
	resolver.RegisterModule("broken/runtime", &api.Module{})

	reg := mounts.NewRegistry()
	loader := catalog.NewLoader(
		&catalog.FSSource{FS: files}, resolver, reg, config.CatalogConfig{},
	)
	return &testEnv{
		Coordinator: registration.NewCoordinator(state, loader, resolver, cfg),
		Resolver:    resolver,
		Mounts:      reg,
		Exec:        exec,
		Files:       files,
	}
}

func TestRegisterAll(t *testing.T) {
	env := newEnv(t, registration.NewState(), config.RegistrationConfig{})
	ready := env.Coordinator.WhenReady()
	assert.False(t, env.Coordinator.IsReady())

	require.NoError(t, env.Coordinator.RegisterAll(
		context.Background(), env.Exec,
	))

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("ready channel not closed")
	}
	assert.True(t, env.Coordinator.IsReady())
	assert.NoError(t, env.Coordinator.Wait(context.Background()))

	assert.Equal(t, []string{"canvas", "panel"}, env.Exec.events)
	assert.Equal(t, []api.SequenceID{"canvas-select"}, env.Exec.Mounted())

	info, ok := env.Coordinator.Info()
	require.True(t, ok)
	assert.Equal(t, []api.TargetID{"canvas"}, info.Plugins)
	assert.NotContains(t, info.Plugins, api.TargetID("library"))
	assert.Equal(t, []api.TargetID{
		"canvas", "panel", "broken", "library",
	}, info.Discovered)
	assert.Equal(t, []api.SequenceID{"canvas-select"}, info.Sequences)
	assert.False(t, info.CompletedAt.IsZero())
}

func TestRegisterAllPriority(t *testing.T) {
	env := newEnv(t, registration.NewState(), config.RegistrationConfig{
		Priority: []api.TargetID{"panel", "unknown"},
	})
	require.NoError(t, env.Coordinator.RegisterAll(
		context.Background(), env.Exec,
	))
	assert.Equal(t, []string{"panel", "canvas"}, env.Exec.events)
}

func TestRegisterAllRunsOncePerState(t *testing.T) {
	state := registration.NewState()
	first := newEnv(t, state, config.RegistrationConfig{})
	require.NoError(t, first.Coordinator.RegisterAll(
		context.Background(), first.Exec,
	))

	second := newEnv(t, state, config.RegistrationConfig{})
	assert.True(t, second.Coordinator.IsReady())
	require.NoError(t, second.Coordinator.RegisterAll(
		context.Background(), second.Exec,
	))
	assert.Empty(t, second.Exec.events)
	assert.Empty(t, second.Exec.Mounted())
}

func TestRegisterAllConcurrent(t *testing.T) {
	env := newEnv(t, registration.NewState(), config.RegistrationConfig{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			assert.NoError(t, env.Coordinator.RegisterAll(
				context.Background(), env.Exec,
			))
		})
	}
	wg.Wait()
	assert.NoError(t, env.Coordinator.Wait(context.Background()))
	assert.Equal(t, []api.SequenceID{"canvas-select"}, env.Exec.Mounted())
}

func TestRegisterAllRequiredReconciliation(t *testing.T) {
	env := newEnv(t, registration.NewState(), config.RegistrationConfig{
		Required: []config.RequiredSequence{
			{
				ID: "canvas-extra", Target: "canvas",
				File: "extra.json", Handlers: "handlers",
			},
			{
				ID: "canvas-select", Target: "canvas",
				File: "select.json", Handlers: "handlers",
			},
			{
				ID: "canvas-gone", Target: "canvas",
				File: "gone.json", Handlers: "handlers",
			},
		},
	})
	require.NoError(t, env.Coordinator.RegisterAll(
		context.Background(), env.Exec,
	))
	assert.Equal(t, []api.SequenceID{
		"canvas-select", "canvas-extra",
	}, env.Exec.Mounted())

	info, _ := env.Coordinator.Info()
	assert.Equal(t, []api.SequenceID{
		"canvas-extra", "canvas-select",
	}, info.Sequences)
}

func TestRegisterAllCancelled(t *testing.T) {
	state := registration.NewState()
	env := newEnv(t, state, config.RegistrationConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.Coordinator.RegisterAll(ctx, env.Exec)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, registration.PhaseIdle, state.Phase())

	require.NoError(t, env.Coordinator.RegisterAll(
		context.Background(), env.Exec,
	))
	assert.True(t, state.IsReady())
}

func TestRegisterAllNoExecutor(t *testing.T) {
	state := registration.NewState()
	env := newEnv(t, state, config.RegistrationConfig{})
	err := env.Coordinator.RegisterAll(context.Background(), nil)
	assert.ErrorIs(t, err, api.ErrNoExecutor)
	assert.Equal(t, registration.PhaseIdle, state.Phase())
}

func TestRegisterAllRecordsRuntimeMounts(t *testing.T) {
	env := newEnv(t, registration.NewState(), config.RegistrationConfig{})
	env.Resolver.RegisterModule("canvas/runtime", &api.Module{
		Exports: map[string]api.RegisterFunc{
			"register": func(ctx context.Context, exec api.Executor) error {
				return exec.Mount(ctx, &api.Sequence{
					ID: "canvas-select",
					Movements: []api.Movement{{
						Beats: []api.Beat{{Beat: 1, Handler: "select"}},
					}},
				}, nil, "canvas")
			},
		},
	})

	require.NoError(t, env.Coordinator.RegisterAll(
		context.Background(), env.Exec,
	))

	assert.Equal(t, []api.SequenceID{"canvas-select"}, env.Exec.Mounted())
	owner, ok := env.Mounts.Owner("canvas-select")
	require.True(t, ok)
	assert.Equal(t, api.TargetID("canvas"), owner)

	info, ok := env.Coordinator.Info()
	require.True(t, ok)
	assert.Equal(t, []api.SequenceID{"canvas-select"}, info.Sequences)
}
