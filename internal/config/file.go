package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kode4food/cadence/pkg/api"
)

// cadence.toml key mapping to engine settings
type fileConfig struct {
	API struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"api"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`

	Topics struct {
		URL   string `toml:"url"`
		Path  string `toml:"path"`
		Redis struct {
			Addr     string `toml:"addr"`
			Password string `toml:"password"`
			Prefix   string `toml:"prefix"`
			DB       int    `toml:"db"`
		} `toml:"redis"`
	} `toml:"topics"`

	Catalog struct {
		BaseURL      string            `toml:"base_url"`
		BucketURL    string            `toml:"bucket_url"`
		ManifestFile string            `toml:"manifest_file"`
		IndexFile    string            `toml:"index_file"`
		Concurrency  int               `toml:"concurrency"`
		ForceRemount []string          `toml:"force_remount"`
		Aliases      map[string]string `toml:"aliases"`
	} `toml:"catalog"`

	Registration struct {
		Priority []string           `toml:"priority"`
		Required []RequiredSequence `toml:"required"`
	} `toml:"registration"`

	Router struct {
		ValidatePayloads bool `toml:"validate_payloads"`
		RequireExecutor  bool `toml:"require_executor"`
	} `toml:"router"`
}

// LoadFromFile overlays the values defined in a TOML file onto the
// configuration. Keys absent from the file leave the current value intact
func (c *Config) LoadFromFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q",
			path, undecoded[0].String())
	}

	if meta.IsDefined("api", "host") {
		c.APIHost = strings.TrimSpace(raw.API.Host)
	}
	if meta.IsDefined("api", "port") {
		c.APIPort = raw.API.Port
	}
	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(raw.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown_timeout: %q",
				raw.ShutdownTimeout)
		}
		c.ShutdownTimeout = d
	}

	if meta.IsDefined("topics", "url") {
		c.Topics.URL = strings.TrimSpace(raw.Topics.URL)
	}
	if meta.IsDefined("topics", "path") {
		c.Topics.Path = strings.TrimSpace(raw.Topics.Path)
	}
	if meta.IsDefined("topics", "redis", "addr") {
		c.Topics.Redis.Addr = strings.TrimSpace(raw.Topics.Redis.Addr)
	}
	if meta.IsDefined("topics", "redis", "password") {
		c.Topics.Redis.Password = raw.Topics.Redis.Password
	}
	if meta.IsDefined("topics", "redis", "prefix") {
		c.Topics.Redis.Prefix = strings.TrimSpace(raw.Topics.Redis.Prefix)
	}
	if meta.IsDefined("topics", "redis", "db") {
		c.Topics.Redis.DB = raw.Topics.Redis.DB
	}

	if meta.IsDefined("catalog", "base_url") {
		c.Catalog.BaseURL = strings.TrimSpace(raw.Catalog.BaseURL)
	}
	if meta.IsDefined("catalog", "bucket_url") {
		c.Catalog.BucketURL = strings.TrimSpace(raw.Catalog.BucketURL)
	}
	if meta.IsDefined("catalog", "manifest_file") {
		c.Catalog.ManifestFile = strings.TrimSpace(raw.Catalog.ManifestFile)
	}
	if meta.IsDefined("catalog", "index_file") {
		c.Catalog.IndexFile = strings.TrimSpace(raw.Catalog.IndexFile)
	}
	if meta.IsDefined("catalog", "concurrency") {
		c.Catalog.Concurrency = raw.Catalog.Concurrency
	}
	if meta.IsDefined("catalog", "force_remount") {
		c.Catalog.ForceRemount = toTargets(raw.Catalog.ForceRemount)
	}
	if meta.IsDefined("catalog", "aliases") {
		aliases := make(map[api.TargetID]string, len(raw.Catalog.Aliases))
		for id, dir := range raw.Catalog.Aliases {
			aliases[api.TargetID(id)] = strings.TrimSpace(dir)
		}
		c.Catalog.Aliases = aliases
	}

	if meta.IsDefined("registration", "priority") {
		c.Registration.Priority = toTargets(raw.Registration.Priority)
	}
	if meta.IsDefined("registration", "required") {
		c.Registration.Required = raw.Registration.Required
	}

	if meta.IsDefined("router", "validate_payloads") {
		c.Router.ValidatePayloads = raw.Router.ValidatePayloads
	}
	if meta.IsDefined("router", "require_executor") {
		c.Router.RequireExecutor = raw.Router.RequireExecutor
	}
	return nil
}

func toTargets(ids []string) []api.TargetID {
	res := make([]api.TargetID, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			res = append(res, api.TargetID(id))
		}
	}
	return res
}
