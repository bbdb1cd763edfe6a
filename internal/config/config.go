package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Config holds configuration settings for the orchestration engine
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Topic manifest
		Topics TopicsConfig

		// Catalogs & Registration
		Catalog      CatalogConfig
		Registration RegistrationConfig

		// Router
		Router RouterConfig

		ShutdownTimeout time.Duration
	}

	// TopicsConfig locates the topics manifest. URL is preferred over Path,
	// and Path over the embedded manifest. When Redis.Addr is set, topics
	// come from Redis instead of the manifest chain
	TopicsConfig struct {
		URL   string
		Path  string
		Redis RedisConfig
	}

	// RedisConfig holds connection settings for the Redis topic provider
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	// CatalogConfig locates catalogs and plugin manifests. BaseURL is
	// preferred over BucketURL, and BucketURL over the embedded catalogs
	CatalogConfig struct {
		Aliases      map[api.TargetID]string
		BaseURL      string
		BucketURL    string
		ManifestFile string
		IndexFile    string
		ForceRemount []api.TargetID
		Concurrency  int
	}

	// RegistrationConfig tunes the one-shot registration run
	RegistrationConfig struct {
		Priority []api.TargetID
		Required []RequiredSequence
	}

	// RequiredSequence names a sequence that must be mounted once
	// registration completes, and the file that mounts it if it is not
	RequiredSequence struct {
		ID       api.SequenceID `toml:"id"`
		Target   api.TargetID   `toml:"target"`
		File     string         `toml:"file"`
		Handlers string         `toml:"handlers"`
	}

	// RouterConfig tunes publish behavior
	RouterConfig struct {
		ValidatePayloads bool
		RequireExecutor  bool
	}
)

const (
	DefaultAPIPort         = 8080
	DefaultAPIHost         = "0.0.0.0"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRedisPrefix     = "cadence"
	DefaultManifestFile    = "plugin-manifest.json"
	DefaultIndexFile       = "index.json"
	DefaultConcurrency     = 8

	MaxTCPPort     = 65535
	MaxConcurrency = 256
	MaxRedisDB     = 15
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidConcurrency     = errors.New("catalog concurrency must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidLogLevel        = errors.New("invalid log level")
	ErrRequiredSequence       = errors.New(
		"required sequence needs id, target and file",
	)
)

var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

// NewDefaultConfig creates a configuration with sensible defaults for the
// API server, catalog loading and router behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		Topics: TopicsConfig{
			Redis: RedisConfig{Prefix: DefaultRedisPrefix},
		},
		Catalog: CatalogConfig{
			Aliases:      map[api.TargetID]string{},
			ManifestFile: DefaultManifestFile,
			IndexFile:    DefaultIndexFile,
			Concurrency:  DefaultConcurrency,
		},
		Router: RouterConfig{
			ValidatePayloads: true,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("TOPICS_URL", &c.Topics.URL)
	loadEnvString("TOPICS_PATH", &c.Topics.Path)
	loadEnvString("TOPICS_REDIS_ADDR", &c.Topics.Redis.Addr)
	loadEnvString("TOPICS_REDIS_PASSWORD", &c.Topics.Redis.Password)
	loadEnvString("TOPICS_REDIS_PREFIX", &c.Topics.Redis.Prefix)
	loadEnvString("CATALOG_URL", &c.Catalog.BaseURL)
	loadEnvString("CATALOG_BUCKET", &c.Catalog.BucketURL)
	loadEnvString("CATALOG_MANIFEST", &c.Catalog.ManifestFile)

	if v := os.Getenv("FORCE_REMOUNT"); v != "" {
		c.Catalog.ForceRemount = splitTargets(v)
	}
	if v := os.Getenv("PRIORITY_PLUGINS"); v != "" {
		c.Registration.Priority = splitTargets(v)
	}
	if v := os.Getenv("CATALOG_ALIASES"); v != "" {
		aliases, err := parseAliases(v)
		if err != nil {
			return err
		}
		c.Catalog.Aliases = aliases
	}

	if err := loadEnvBool(
		"VALIDATE_PAYLOADS", &c.Router.ValidatePayloads,
	); err != nil {
		return err
	}
	if err := loadEnvBool(
		"REQUIRE_EXECUTOR", &c.Router.RequireExecutor,
	); err != nil {
		return err
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"TOPICS_REDIS_DB", &c.Topics.Redis.DB, -1, MaxRedisDB,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"CATALOG_CONCURRENCY", &c.Catalog.Concurrency, 0, MaxConcurrency,
	); err != nil {
		return err
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %q", v)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.Catalog.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}

	for _, r := range c.Registration.Required {
		if r.ID == "" || r.Target == "" || r.File == "" {
			return fmt.Errorf("%w: %q", ErrRequiredSequence, r.ID)
		}
	}
	return nil
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func splitTargets(s string) []api.TargetID {
	var res []api.TargetID
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			res = append(res, api.TargetID(p))
		}
	}
	return res
}

func parseAliases(s string) (map[api.TargetID]string, error) {
	res := map[api.TargetID]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, dir, ok := strings.Cut(part, "=")
		id, dir = strings.TrimSpace(id), strings.TrimSpace(dir)
		if !ok || id == "" || dir == "" {
			return nil, fmt.Errorf("invalid CATALOG_ALIASES entry: %q", part)
		}
		res[api.TargetID(id)] = dir
	}
	return res, nil
}
