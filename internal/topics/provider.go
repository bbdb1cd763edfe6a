package topics

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// Provider supplies topic definitions to the Registry
	Provider interface {
		Init(ctx context.Context) error
		TopicDef(name api.TopicName) (*api.TopicDef, bool)
		Topics() map[api.TopicName]*api.TopicDef
		Stats() Stats
	}

	// Stats describes the state of a Provider
	Stats struct {
		Source     string `json:"source,omitempty"`
		Loaded     bool   `json:"loaded"`
		TopicCount int    `json:"topic_count"`
	}

	// StaticProvider serves a fixed set of topic definitions
	StaticProvider struct {
		mu     sync.RWMutex
		topics map[api.TopicName]*api.TopicDef
		source string
		loaded bool
	}

	// ManifestProvider loads the first manifest a chain of sources can
	// produce. When every source fails it serves an empty topic map
	ManifestProvider struct {
		StaticProvider
		sources []Source
	}
)

var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*ManifestProvider)(nil)
)

// NewStaticProvider creates a provider over the given definitions. Map
// keys are assigned as topic names and invalid definitions are dropped
func NewStaticProvider(defs map[api.TopicName]*api.TopicDef) *StaticProvider {
	m := &api.TopicsManifest{Topics: maps.Clone(defs)}
	for _, err := range m.Normalize() {
		slog.Warn("Invalid topic definition dropped", log.Error(err))
	}
	return &StaticProvider{
		topics: m.Topics,
		source: "static",
		loaded: true,
	}
}

// Init is a no-op for static providers
func (p *StaticProvider) Init(context.Context) error {
	return nil
}

// TopicDef returns the definition registered under name
func (p *StaticProvider) TopicDef(name api.TopicName) (*api.TopicDef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	def, ok := p.topics[name]
	return def, ok
}

// Topics returns a copy of the definition map
func (p *StaticProvider) Topics() map[api.TopicName]*api.TopicDef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.topics)
}

// Stats reports whether topics are loaded and how many there are
func (p *StaticProvider) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Source:     p.source,
		Loaded:     p.loaded,
		TopicCount: len(p.topics),
	}
}

func (p *StaticProvider) replace(
	source string, topics map[api.TopicName]*api.TopicDef,
) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
	p.topics = topics
	p.loaded = true
}

// NewManifestProvider creates a provider that tries each source in order
func NewManifestProvider(sources ...Source) *ManifestProvider {
	return &ManifestProvider{
		StaticProvider: StaticProvider{
			topics: map[api.TopicName]*api.TopicDef{},
		},
		sources: slices.Clone(sources),
	}
}

// Init loads the first manifest a source produces. Source failures are
// logged and never returned: the fallback is an empty topic map
func (p *ManifestProvider) Init(ctx context.Context) error {
	for _, src := range p.sources {
		m, err := src.Load(ctx)
		if err != nil {
			slog.Warn("Topics manifest source failed",
				slog.String("source", src.Name()),
				log.Error(err))
			continue
		}
		for _, err := range m.Normalize() {
			slog.Warn("Invalid topic definition dropped",
				slog.String("source", src.Name()),
				log.Error(err))
		}
		p.replace(src.Name(), m.Topics)
		slog.Info("Topics loaded",
			slog.String("source", src.Name()),
			slog.Int("count", len(m.Topics)))
		return nil
	}
	slog.Warn("No topics manifest available, using empty topic map")
	p.replace("empty", map[api.TopicName]*api.TopicDef{})
	return nil
}
