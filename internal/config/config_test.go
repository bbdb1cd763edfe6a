package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/pkg/api"
)

func TestConfigValidation(t *testing.T) {
	t.Run("valid_default_config", func(t *testing.T) {
		assert.NoError(t, config.NewDefaultConfig().Validate())
	})

	tests := []struct {
		name      string
		configMod func(*config.Config)
		expected  error
	}{
		{
			name:      "invalid_api_port_zero",
			configMod: func(c *config.Config) { c.APIPort = 0 },
			expected:  config.ErrInvalidAPIPort,
		},
		{
			name:      "invalid_api_port_too_high",
			configMod: func(c *config.Config) { c.APIPort = 70000 },
			expected:  config.ErrInvalidAPIPort,
		},
		{
			name:      "zero_concurrency",
			configMod: func(c *config.Config) { c.Catalog.Concurrency = 0 },
			expected:  config.ErrInvalidConcurrency,
		},
		{
			name:      "zero_shutdown_timeout",
			configMod: func(c *config.Config) { c.ShutdownTimeout = 0 },
			expected:  config.ErrInvalidShutdownTimeout,
		},
		{
			name:      "bad_log_level",
			configMod: func(c *config.Config) { c.LogLevel = "loud" },
			expected:  config.ErrInvalidLogLevel,
		},
		{
			name: "incomplete_required_sequence",
			configMod: func(c *config.Config) {
				c.Registration.Required = []config.RequiredSequence{
					{ID: "seq", Target: "plugin"},
				}
			},
			expected: config.ErrRequiredSequence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.configMod(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.expected)
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := config.NewDefaultConfig()

	assert.Equal(t, config.DefaultAPIPort, cfg.APIPort)
	assert.Equal(t, config.DefaultAPIHost, cfg.APIHost)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, config.DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, config.DefaultRedisPrefix, cfg.Topics.Redis.Prefix)
	assert.Equal(t, config.DefaultManifestFile, cfg.Catalog.ManifestFile)
	assert.Equal(t, config.DefaultConcurrency, cfg.Catalog.Concurrency)
	assert.True(t, cfg.Router.ValidatePayloads)
	assert.False(t, cfg.Router.RequireExecutor)
	assert.Empty(t, cfg.Catalog.ForceRemount)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TOPICS_PATH", "/etc/cadence/topics.hcl")
	t.Setenv("TOPICS_REDIS_ADDR", "localhost:6379")
	t.Setenv("TOPICS_REDIS_DB", "3")
	t.Setenv("CATALOG_URL", "http://catalogs.local")
	t.Setenv("CATALOG_CONCURRENCY", "4")
	t.Setenv("CATALOG_ALIASES", "pkg-a=a, pkg-b = b")
	t.Setenv("FORCE_REMOUNT", "library, canvas")
	t.Setenv("PRIORITY_PLUGINS", "theme")
	t.Setenv("VALIDATE_PAYLOADS", "false")
	t.Setenv("REQUIRE_EXECUTOR", "true")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/etc/cadence/topics.hcl", cfg.Topics.Path)
	assert.Equal(t, "localhost:6379", cfg.Topics.Redis.Addr)
	assert.Equal(t, 3, cfg.Topics.Redis.DB)
	assert.Equal(t, "http://catalogs.local", cfg.Catalog.BaseURL)
	assert.Equal(t, 4, cfg.Catalog.Concurrency)
	assert.Equal(t, map[api.TargetID]string{
		"pkg-a": "a", "pkg-b": "b",
	}, cfg.Catalog.Aliases)
	assert.Equal(t,
		[]api.TargetID{"library", "canvas"}, cfg.Catalog.ForceRemount,
	)
	assert.Equal(t, []api.TargetID{"theme"}, cfg.Registration.Priority)
	assert.False(t, cfg.Router.ValidatePayloads)
	assert.True(t, cfg.Router.RequireExecutor)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"API_PORT", "abc"},
		{"API_PORT", "70000"},
		{"CATALOG_CONCURRENCY", "0"},
		{"VALIDATE_PAYLOADS", "maybe"},
		{"SHUTDOWN_TIMEOUT", "soon"},
		{"CATALOG_ALIASES", "no-equals"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := config.NewDefaultConfig()
			assert.Error(t, cfg.LoadFromEnv())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
log_level = "warn"
shutdown_timeout = "2s"

[api]
port = 9191

[topics]
url = "http://topics.local/topics.json"

[topics.redis]
addr = "redis:6379"
prefix = "ui"

[catalog]
bucket_url = "mem://"
force_remount = ["library"]

[catalog.aliases]
"@scope/pkg" = "pkg"

[registration]
priority = ["theme", "layout"]

[[registration.required]]
id = "library-load"
target = "library"
file = "load.json"
handlers = "library/handlers"

[router]
require_executor = true
`)

	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, config.DefaultAPIHost, cfg.APIHost)
	assert.Equal(t, 9191, cfg.APIPort)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://topics.local/topics.json", cfg.Topics.URL)
	assert.Equal(t, "redis:6379", cfg.Topics.Redis.Addr)
	assert.Equal(t, "ui", cfg.Topics.Redis.Prefix)
	assert.Equal(t, "mem://", cfg.Catalog.BucketURL)
	assert.Equal(t, []api.TargetID{"library"}, cfg.Catalog.ForceRemount)
	assert.Equal(t, "pkg", cfg.Catalog.Aliases["@scope/pkg"])
	assert.Equal(t,
		[]api.TargetID{"theme", "layout"}, cfg.Registration.Priority,
	)
	require.Len(t, cfg.Registration.Required, 1)
	assert.Equal(t,
		api.SequenceID("library-load"), cfg.Registration.Required[0].ID,
	)
	assert.Equal(t, "library/handlers", cfg.Registration.Required[0].Handlers)
	assert.True(t, cfg.Router.ValidatePayloads)
	assert.True(t, cfg.Router.RequireExecutor)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "none.toml"))
		assert.Error(t, err)
	})

	t.Run("unknown_key", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		err := cfg.LoadFromFile(writeFile(t, `colour = "blue"`))
		assert.ErrorContains(t, err, "colour")
	})

	t.Run("bad_duration", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		err := cfg.LoadFromFile(writeFile(t, `shutdown_timeout = "later"`))
		assert.ErrorContains(t, err, "shutdown_timeout")
	})
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cadence.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
