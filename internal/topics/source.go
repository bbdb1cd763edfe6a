package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Source produces a topics manifest from some external location
	Source interface {
		Name() string
		Load(ctx context.Context) (*api.TopicsManifest, error)
	}

	// HTTPSource fetches a JSON topics manifest from a URL
	HTTPSource struct {
		URL    string
		Client *http.Client
	}

	// FileSource reads a topics manifest from disk. Files ending in .hcl
	// are decoded as HCL, everything else as JSON
	FileSource struct {
		Path string
	}

	// EmbeddedSource reads a topics manifest from a file system, typically
	// one embedded in the binary
	EmbeddedSource struct {
		FS   fs.FS
		Path string
	}
)

const defaultHTTPTimeout = 10 * time.Second

var (
	ErrManifestStatus = errors.New("unexpected manifest response status")
	ErrManifestDecode = errors.New("failed to decode topics manifest")
)

// Name identifies the source in logs and stats
func (s *HTTPSource) Name() string {
	return "http"
}

// Load fetches and decodes the manifest
func (s *HTTPSource) Load(ctx context.Context) (*api.TopicsManifest, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrManifestStatus, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeManifest(s.URL, data)
}

// Name identifies the source in logs and stats
func (s *FileSource) Name() string {
	return "file"
}

// Load reads and decodes the manifest
func (s *FileSource) Load(context.Context) (*api.TopicsManifest, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return decodeManifest(s.Path, data)
}

// Name identifies the source in logs and stats
func (s *EmbeddedSource) Name() string {
	return "embedded"
}

// Load reads and decodes the manifest
func (s *EmbeddedSource) Load(context.Context) (*api.TopicsManifest, error) {
	data, err := fs.ReadFile(s.FS, s.Path)
	if err != nil {
		return nil, err
	}
	return decodeManifest(s.Path, data)
}

func decodeManifest(name string, data []byte) (*api.TopicsManifest, error) {
	if strings.EqualFold(filepath.Ext(name), ".hcl") {
		return DecodeHCL(name, data)
	}
	return DecodeJSON(data)
}

// DecodeJSON decodes a JSON topics manifest
func DecodeJSON(data []byte) (*api.TopicsManifest, error) {
	var m api.TopicsManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestDecode, err)
	}
	if m.Topics == nil {
		m.Topics = map[api.TopicName]*api.TopicDef{}
	}
	return &m, nil
}
