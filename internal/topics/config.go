package topics

import (
	"io/fs"

	"github.com/kode4food/cadence/internal/config"
)

// EmbeddedManifest is the path of the manifest inside an embedded FS
const EmbeddedManifest = "topics.json"

// NewProvider builds the provider the configuration selects. Redis wins
// when an address is configured; otherwise the manifest chain is URL, then
// path, then the embedded manifest
func NewProvider(cfg config.TopicsConfig, embedded fs.FS) Provider {
	if cfg.Redis.Addr != "" {
		return NewRedisProvider(cfg.Redis)
	}
	var sources []Source
	if cfg.URL != "" {
		sources = append(sources, &HTTPSource{URL: cfg.URL})
	}
	if cfg.Path != "" {
		sources = append(sources, &FileSource{Path: cfg.Path})
	}
	if embedded != nil {
		sources = append(sources, &EmbeddedSource{
			FS:   embedded,
			Path: EmbeddedManifest,
		})
	}
	return NewManifestProvider(sources...)
}
