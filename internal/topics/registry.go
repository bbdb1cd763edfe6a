package topics

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

// Registry resolves topic names to their definitions. The provider is
// initialized once, on first access, and concurrent callers wait for that
// same load
type Registry struct {
	mu       sync.Mutex
	provider Provider
	once     *sync.Once
}

// NewRegistry creates a registry over the provider
func NewRegistry(p Provider) *Registry {
	return &Registry{
		provider: p,
		once:     &sync.Once{},
	}
}

// SetProvider replaces the provider, overriding any built-in loading.
// The new provider is initialized on next access
func (r *Registry) SetProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider = p
	r.once = &sync.Once{}
}

// TopicDef returns the definition for the named topic
func (r *Registry) TopicDef(
	ctx context.Context, name api.TopicName,
) (*api.TopicDef, bool) {
	return r.ensure(ctx).TopicDef(name)
}

// Topics returns every loaded topic definition
func (r *Registry) Topics(ctx context.Context) map[api.TopicName]*api.TopicDef {
	return r.ensure(ctx).Topics()
}

// Names returns the loaded topic names in sorted order
func (r *Registry) Names(ctx context.Context) []api.TopicName {
	topics := r.ensure(ctx).Topics()
	res := make([]api.TopicName, 0, len(topics))
	for name := range topics {
		res = append(res, name)
	}
	slices.Sort(res)
	return res
}

// Stats reports the provider's state, loading it if necessary
func (r *Registry) Stats(ctx context.Context) Stats {
	return r.ensure(ctx).Stats()
}

func (r *Registry) ensure(ctx context.Context) Provider {
	r.mu.Lock()
	if r.provider == nil {
		r.provider = NewStaticProvider(nil)
	}
	p, once := r.provider, r.once
	r.mu.Unlock()

	once.Do(func() {
		if err := p.Init(ctx); err != nil {
			slog.Warn("Topic provider failed to load, using empty topic map",
				log.Error(err))
			r.fallback(once)
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.once == once {
		return r.provider
	}
	return p
}

func (r *Registry) fallback(once *sync.Once) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.once == once {
		r.provider = NewStaticProvider(nil)
	}
}
