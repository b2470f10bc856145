// Package config loads the weslplay server configuration from a YAML file,
// fills defaults and applies WESLPLAY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/horosafe"
)

// Config is the top-level server configuration.
type Config struct {
	Addr           string                   `yaml:"addr"`
	DataDir        string                   `yaml:"data_dir"`
	LogLevel       string                   `yaml:"log_level"`
	PublicURL      string                   `yaml:"public_url"`      // prefix of share links
	AllowedOrigins []string                 `yaml:"allowed_origins"` // cross-origin UI hosts
	Store          StoreConfig              `yaml:"store"`
	Share          ShareConfig              `yaml:"share"`
	Compile        CompileConfig            `yaml:"compile"`
	Backends       map[string]BackendConfig `yaml:"backends"`
}

// StoreConfig selects the per-session persistent store.
type StoreConfig struct {
	Driver  string `yaml:"driver"`  // sqlite | bolt
	Version string `yaml:"version"` // bump to wipe every stored session
}

// ShareConfig points at the snapshot store. An empty URL serves the embedded
// store under /share.
type ShareConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// CompileConfig tunes the compile orchestrator.
type CompileConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	DiscardStale bool          `yaml:"discard_stale"`
}

// BackendConfig says how one backend service is reached.
type BackendConfig struct {
	Strategy string        `yaml:"strategy"` // local | http | noop
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Drivers lists the accepted store drivers.
var Drivers = []string{"sqlite", "bolt"}

// Load reads path (skipped when empty), applies defaults, then environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Addr, "WESLPLAY_ADDR")
	set(&c.DataDir, "WESLPLAY_DATA_DIR")
	set(&c.LogLevel, "WESLPLAY_LOG_LEVEL")
	set(&c.Share.URL, "WESLPLAY_SHARE_URL")
	set(&c.PublicURL, "WESLPLAY_PUBLIC_URL")
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Version == "" {
		c.Store.Version = "3"
	}
	if c.Share.Timeout <= 0 {
		c.Share.Timeout = 10 * time.Second
	}
	if c.Compile.Debounce <= 0 {
		c.Compile.Debounce = 500 * time.Millisecond
	}
	for name, b := range c.Backends {
		if b.Strategy == "" {
			b.Strategy = "http"
		}
		if b.Timeout <= 0 {
			b.Timeout = 30 * time.Second
		}
		c.Backends[name] = b
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(Drivers, c.Store.Driver) {
		errs = append(errs, fmt.Errorf("config: store.driver %q not in %v", c.Store.Driver, Drivers))
	}
	if c.PublicURL != "" {
		if err := horosafe.ValidateScheme(c.PublicURL); err != nil {
			errs = append(errs, fmt.Errorf("config: public_url: %w", err))
		}
	}
	for i, o := range c.AllowedOrigins {
		if err := horosafe.ValidateScheme(o); err != nil {
			errs = append(errs, fmt.Errorf("config: allowed_origins[%d]: %w", i, err))
		}
	}
	if c.Share.URL != "" {
		if err := horosafe.ValidateScheme(c.Share.URL); err != nil {
			errs = append(errs, fmt.Errorf("config: share.url: %w", err))
		}
	}
	for name, b := range c.Backends {
		switch b.Strategy {
		case "local", "noop":
		case "http":
			if err := horosafe.ValidateScheme(b.Endpoint); err != nil {
				errs = append(errs, fmt.Errorf("config: backends.%s.endpoint: %w", name, err))
			}
		default:
			errs = append(errs, fmt.Errorf("config: backends.%s: unknown strategy %q", name, b.Strategy))
		}
	}
	return errors.Join(errs...)
}

// Routes returns the backend routes in service-name order.
func (c *Config) Routes() []backend.Route {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	routes := make([]backend.Route, 0, len(names))
	for _, name := range names {
		b := c.Backends[name]
		routes = append(routes, backend.Route{
			Service:  name,
			Strategy: b.Strategy,
			Endpoint: b.Endpoint,
			Timeout:  b.Timeout,
		})
	}
	return routes
}
