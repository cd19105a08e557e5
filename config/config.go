// Package config provides configuration loading and management for semtrip.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semtrip/budget"
	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/guide"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/resilient"
	"github.com/c360studio/semtrip/weather"
)

// Duration is a time.Duration written as "500ms", "2m" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the complete semtrip configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server" toml:"server"`
	LLM        model.RegistryConfig `yaml:"llm" toml:"llm"`
	Resilience ResilienceConfig     `yaml:"resilience" toml:"resilience"`
	Maps       ProviderConfig       `yaml:"maps" toml:"maps"`
	Weather    ProviderConfig       `yaml:"weather" toml:"weather"`
	Cache      CacheConfig          `yaml:"cache" toml:"cache"`
	Store      StoreConfig          `yaml:"store" toml:"store"`
	NATS       NATSConfig           `yaml:"nats" toml:"nats"`
	Pipeline   PipelineConfig       `yaml:"pipeline" toml:"pipeline"`
	Seed       SeedConfig           `yaml:"seed" toml:"seed"`
	Guide      GuideConfig          `yaml:"guide" toml:"guide"`
	Budget     BudgetConfig         `yaml:"budget" toml:"budget"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `yaml:"addr" toml:"addr"`
	// ShutdownTimeout bounds graceful shutdown, including running plans
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ResilienceConfig configures retries and caching of provider calls.
type ResilienceConfig struct {
	MaxAttempts       int      `yaml:"max_attempts" toml:"max_attempts"`
	BackoffBase       Duration `yaml:"backoff_base" toml:"backoff_base"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	MaxBackoff        Duration `yaml:"max_backoff" toml:"max_backoff"`
	// CacheTTL is the default lifetime of cached responses
	CacheTTL Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// ProviderConfig configures a keyed REST provider (maps, weather).
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	// APIKey is usually supplied through the environment
	APIKey      string   `yaml:"api_key,omitempty" toml:"api_key"`
	MinInterval Duration `yaml:"min_interval" toml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval" toml:"max_interval"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend  string `yaml:"backend" toml:"backend"`
	RedisURL string `yaml:"redis_url,omitempty" toml:"redis_url"`
}

// StoreConfig selects where runs are persisted.
type StoreConfig struct {
	// Backend is "memory", "sqlite" or "nats"
	Backend string `yaml:"backend" toml:"backend"`
	// Path is the SQLite database file
	Path string `yaml:"path,omitempty" toml:"path"`
}

// NATSConfig configures the NATS connection used for progress events and
// the JetStream run store.
type NATSConfig struct {
	// URL is the NATS server URL (empty = events disabled unless embedded)
	URL string `yaml:"url" toml:"url"`
	// Embedded starts an in-process JetStream server instead of dialing URL
	Embedded bool `yaml:"embedded" toml:"embedded"`
	// StoreDir is where the embedded server keeps JetStream data
	StoreDir string `yaml:"store_dir,omitempty" toml:"store_dir"`
}

// Enabled reports whether a NATS connection is configured.
func (n NATSConfig) Enabled() bool {
	return n.Embedded || n.URL != ""
}

// PipelineConfig configures plan runs.
type PipelineConfig struct {
	RunTimeout Duration `yaml:"run_timeout" toml:"run_timeout"`
	// DayConcurrency > 1 plans days in parallel without the cross-day
	// avoid list
	DayConcurrency int `yaml:"day_concurrency" toml:"day_concurrency"`
	// MaxTripDays rejects longer requests
	MaxTripDays int `yaml:"max_trip_days" toml:"max_trip_days"`
}

// SeedConfig configures the reference data overlay.
type SeedConfig struct {
	// Dir holds YAML files merged over the embedded defaults
	Dir      string   `yaml:"dir,omitempty" toml:"dir"`
	Watch    bool     `yaml:"watch" toml:"watch"`
	Debounce Duration `yaml:"debounce" toml:"debounce"`
}

// GuideConfig configures travel guide ingestion.
type GuideConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
	UserAgent    string   `yaml:"user_agent" toml:"user_agent"`
	MaxBytes     int64    `yaml:"max_bytes" toml:"max_bytes"`
	ExcerptRunes int      `yaml:"excerpt_runes" toml:"excerpt_runes"`
	CacheTTL     Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// BudgetConfig holds the advisory rules. Empty uses the built-in rules.
type BudgetConfig struct {
	Rules []budget.Rule `yaml:"rules,omitempty" toml:"rules"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	retry := resilient.DefaultRetryConfig()
	maps := geo.DefaultConfig()
	wx := weather.DefaultConfig()
	gd := guide.DefaultConfig()
	pl := pipeline.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:       retry.MaxAttempts,
			BackoffBase:       Duration(retry.BackoffBase),
			BackoffMultiplier: retry.BackoffMultiplier,
			MaxBackoff:        Duration(retry.MaxBackoff),
			CacheTTL:          Duration(resilient.DefaultTTL),
		},
		Maps: ProviderConfig{
			BaseURL:     maps.BaseURL,
			MinInterval: Duration(maps.MinInterval),
			MaxInterval: Duration(maps.MaxInterval),
			Timeout:     Duration(maps.Timeout),
		},
		Weather: ProviderConfig{
			BaseURL:     wx.BaseURL,
			MinInterval: Duration(wx.MinInterval),
			MaxInterval: Duration(wx.MaxInterval),
			Timeout:     Duration(wx.Timeout),
		},
		Cache: CacheConfig{Backend: "memory"},
		Store: StoreConfig{Backend: "memory"},
		Pipeline: PipelineConfig{
			RunTimeout:     Duration(pl.RunTimeout),
			DayConcurrency: pl.DayConcurrency,
			MaxTripDays:    pl.MaxTripDays,
		},
		Seed: SeedConfig{Debounce: Duration(500 * time.Millisecond)},
		Guide: GuideConfig{
			Enabled:      true,
			Timeout:      Duration(gd.Timeout),
			UserAgent:    gd.UserAgent,
			MaxBytes:     gd.MaxBytes,
			ExcerptRunes: gd.ExcerptRunes,
			CacheTTL:     Duration(gd.CacheTTL),
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Resilience.MaxAttempts < 1 {
		errs = append(errs, errors.New("resilience.max_attempts must be at least 1"))
	}
	if c.Resilience.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("resilience.backoff_multiplier must be at least 1"))
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	case "nats":
		if !c.NATS.Enabled() {
			errs = append(errs, errors.New("nats.url or nats.embedded is required for the nats store backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Pipeline.RunTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.run_timeout must be positive"))
	}
	if c.Pipeline.DayConcurrency < 1 {
		errs = append(errs, errors.New("pipeline.day_concurrency must be at least 1"))
	}
	if c.Pipeline.MaxTripDays < 1 {
		errs = append(errs, errors.New("pipeline.max_trip_days must be at least 1"))
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Budget.Rules) > 0 {
		if _, err := budget.NewAggregator(c.Budget.Rules); err != nil {
			errs = append(errs, fmt.Errorf("budget.rules: %w", err))
		}
	}
	return errors.Join(errs...)
}

// isTOML reports whether path should be read as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadFromFile loads configuration from a YAML or TOML file over the
// defaults. The format follows the file extension.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path, DefaultConfig())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile decodes path into cfg.
func readFile(path string, cfg *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML, or TOML for a .toml path.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = out
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	setString(&c.Server.Addr, other.Server.Addr)
	setDuration(&c.Server.ShutdownTimeout, other.Server.ShutdownTimeout)

	// LLM
	setString(&c.LLM.Default, other.LLM.Default)
	for name, capCfg := range other.LLM.Capabilities {
		if c.LLM.Capabilities == nil {
			c.LLM.Capabilities = make(map[string]*model.CapabilityConfig)
		}
		c.LLM.Capabilities[name] = capCfg
	}
	for name, ep := range other.LLM.Endpoints {
		if c.LLM.Endpoints == nil {
			c.LLM.Endpoints = make(map[string]*model.EndpointConfig)
		}
		c.LLM.Endpoints[name] = ep
	}

	// Resilience
	if other.Resilience.MaxAttempts != 0 {
		c.Resilience.MaxAttempts = other.Resilience.MaxAttempts
	}
	setDuration(&c.Resilience.BackoffBase, other.Resilience.BackoffBase)
	if other.Resilience.BackoffMultiplier != 0 {
		c.Resilience.BackoffMultiplier = other.Resilience.BackoffMultiplier
	}
	setDuration(&c.Resilience.MaxBackoff, other.Resilience.MaxBackoff)
	setDuration(&c.Resilience.CacheTTL, other.Resilience.CacheTTL)

	mergeProvider(&c.Maps, other.Maps)
	mergeProvider(&c.Weather, other.Weather)

	// Cache, store, NATS
	setString(&c.Cache.Backend, other.Cache.Backend)
	setString(&c.Cache.RedisURL, other.Cache.RedisURL)
	setString(&c.Store.Backend, other.Store.Backend)
	setString(&c.Store.Path, other.Store.Path)
	setString(&c.NATS.URL, other.NATS.URL)
	if other.NATS.Embedded {
		c.NATS.Embedded = true
	}
	setString(&c.NATS.StoreDir, other.NATS.StoreDir)

	// Pipeline
	setDuration(&c.Pipeline.RunTimeout, other.Pipeline.RunTimeout)
	if other.Pipeline.DayConcurrency != 0 {
		c.Pipeline.DayConcurrency = other.Pipeline.DayConcurrency
	}
	if other.Pipeline.MaxTripDays != 0 {
		c.Pipeline.MaxTripDays = other.Pipeline.MaxTripDays
	}

	// Seed
	setString(&c.Seed.Dir, other.Seed.Dir)
	if other.Seed.Watch {
		c.Seed.Watch = true
	}
	setDuration(&c.Seed.Debounce, other.Seed.Debounce)

	// Guide. Zero values cannot express "disabled", so Enabled is left
	// to the file layers.
	setDuration(&c.Guide.Timeout, other.Guide.Timeout)
	setString(&c.Guide.UserAgent, other.Guide.UserAgent)
	if other.Guide.MaxBytes != 0 {
		c.Guide.MaxBytes = other.Guide.MaxBytes
	}
	if other.Guide.ExcerptRunes != 0 {
		c.Guide.ExcerptRunes = other.Guide.ExcerptRunes
	}
	setDuration(&c.Guide.CacheTTL, other.Guide.CacheTTL)

	// Budget
	if len(other.Budget.Rules) > 0 {
		c.Budget.Rules = other.Budget.Rules
	}
}

func mergeProvider(dst *ProviderConfig, src ProviderConfig) {
	setString(&dst.BaseURL, src.BaseURL)
	setString(&dst.APIKey, src.APIKey)
	setDuration(&dst.MinInterval, src.MinInterval)
	setDuration(&dst.MaxInterval, src.MaxInterval)
	setDuration(&dst.Timeout, src.Timeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *Duration, v Duration) {
	if v != 0 {
		*dst = v
	}
}

// RetryConfig returns the resilient client retry settings.
func (c *Config) RetryConfig() resilient.RetryConfig {
	return resilient.RetryConfig{
		MaxAttempts:       c.Resilience.MaxAttempts,
		BackoffBase:       c.Resilience.BackoffBase.Std(),
		BackoffMultiplier: c.Resilience.BackoffMultiplier,
		MaxBackoff:        c.Resilience.MaxBackoff.Std(),
	}
}

// GeoConfig returns the map client settings.
func (c *Config) GeoConfig() geo.Config {
	return geo.Config{
		BaseURL:     c.Maps.BaseURL,
		APIKey:      c.Maps.APIKey,
		MinInterval: c.Maps.MinInterval.Std(),
		MaxInterval: c.Maps.MaxInterval.Std(),
		Timeout:     c.Maps.Timeout.Std(),
	}
}

// WeatherConfig returns the weather client settings.
func (c *Config) WeatherConfig() weather.Config {
	return weather.Config{
		BaseURL:     c.Weather.BaseURL,
		APIKey:      c.Weather.APIKey,
		MinInterval: c.Weather.MinInterval.Std(),
		MaxInterval: c.Weather.MaxInterval.Std(),
		Timeout:     c.Weather.Timeout.Std(),
	}
}

// GuideConfig returns the guide loader settings.
func (c *Config) GuideConfig() guide.Config {
	cfg := guide.DefaultConfig()
	cfg.Timeout = c.Guide.Timeout.Std()
	cfg.UserAgent = c.Guide.UserAgent
	cfg.MaxBytes = c.Guide.MaxBytes
	cfg.ExcerptRunes = c.Guide.ExcerptRunes
	cfg.CacheTTL = c.Guide.CacheTTL.Std()
	return cfg
}

// PipelineConfig returns the orchestrator settings.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		RunTimeout:     c.Pipeline.RunTimeout.Std(),
		DayConcurrency: c.Pipeline.DayConcurrency,
		MaxTripDays:    c.Pipeline.MaxTripDays,
	}
}
