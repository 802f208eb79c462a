package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default upstream base URLs used when neither the config file nor the page shell names one.
const (
	DefaultLLMURL   = "http://127.0.0.1:8080"
	DefaultRAGURL   = "http://127.0.0.1:8011"
	DefaultAudioURL = "http://127.0.0.1:7001"
)

// DefaultCollections is the fixed set of retrieval collections shown in the status table.
var DefaultCollections = []string{"anthology", "blog", "projects"}

type EndpointsConfig struct {
	LLM   string `yaml:"llm" validate:"omitempty,url"`   // Inference server base URL
	RAG   string `yaml:"rag" validate:"omitempty,url"`   // Retrieval service base URL
	Audio string `yaml:"audio" validate:"omitempty,url"` // Audio service base URL
}

type ProbeConfig struct {
	TimeoutMs int  `yaml:"timeout_ms" validate:"gte=0"` // Per-attempt bound for diagnostic probes (default 3000)
	Parallel  bool `yaml:"parallel"`                    // Fan out degraded-path probes
}

type ContentConfig struct {
	Dir    string `yaml:"dir"`    // Markdown source directory
	Output string `yaml:"output"` // posts.json destination
}

type PageConfig struct {
	Shell       string `yaml:"shell"`        // Optional HTML shell file; embedded shell when empty
	PostsSource string `yaml:"posts_source"` // URL or file path of posts.json (default content.output)
}

type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`                                        // Cache bootstrap snapshots
	Backend    string `yaml:"backend" validate:"omitempty,oneof=memory redis"` // "memory" or "redis"
	RedisAddr  string `yaml:"redis_addr"`                                     // host:port for the redis backend
	MaxEntries int    `yaml:"max_entries"`                                    // memory backend capacity
	TTLSec     int    `yaml:"ttl_sec"`                                        // entry lifetime
}

type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`          // Rate limit mutating endpoints
	RequestsPerMin int  `yaml:"requests_per_min"` // Sustained requests per minute per client
	BurstSize      int  `yaml:"burst_size"`       // Burst allowance
}

type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`    // Require an admin key on mutating endpoints
	AdminKeys []string `yaml:"admin_keys"` // Accepted keys
}

type DashboardConfig struct {
	Password string `yaml:"password"` // Optional password protecting the page
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Expose Prometheus metrics at /metrics
}

type PollConfig struct {
	IntervalSec int `yaml:"interval_sec" validate:"gte=0"` // Background refresh period (0 = off)
}

type LoggingConfig struct {
	Format string `yaml:"format" validate:"omitempty,oneof=json text"` // "json" or "text" (default "text")
	Level  string `yaml:"level"`                                       // zap level name (default "info")
}

type Config struct {
	ListenAddr  string          `yaml:"listen_addr"` // Server listen address (e.g. ":8090")
	Endpoints   EndpointsConfig `yaml:"endpoints"`
	Collections []string        `yaml:"collections" validate:"dive,required"`
	Probe       ProbeConfig     `yaml:"probe"`
	Content     ContentConfig   `yaml:"content"`
	Page        PageConfig      `yaml:"page"`
	Cache       CacheConfig     `yaml:"cache"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Auth        AuthConfig      `yaml:"auth"`
	Dashboard   DashboardConfig `yaml:"dashboard"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Poll        PollConfig      `yaml:"poll"`
	Logging     LoggingConfig   `yaml:"logging"`

	configPath string `yaml:"-"`
}

// ConfigPath returns the path to the loaded config file, empty when defaults were used.
func (c *Config) ConfigPath() string { return c.configPath }

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing file is not an error: the
// defaults are returned so `sitepanel build` works with no flags.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr: ":8090",
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.applyDefaults()
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.applyDefaults()
	if cfg.Cache.Enabled && cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		return nil, fmt.Errorf("cache.redis_addr is required for the redis backend")
	}

	cfg.configPath = path
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if len(c.Collections) == 0 {
		c.Collections = append([]string(nil), DefaultCollections...)
	}
	if c.Probe.TimeoutMs == 0 {
		c.Probe.TimeoutMs = 3000
	}

	if c.Content.Dir == "" {
		c.Content.Dir = "content"
	}
	if c.Content.Output == "" {
		c.Content.Output = "public/posts.json"
	}
	if c.Page.PostsSource == "" {
		c.Page.PostsSource = c.Content.Output
	}

	// Defaults for cache
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Enabled && c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 64
	}
	if c.Cache.Enabled && c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 10
	}

	// Defaults for rate limiting
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin == 0 {
		c.RateLimit.RequestsPerMin = 30
	}
	if c.RateLimit.Enabled && c.RateLimit.BurstSize == 0 {
		c.RateLimit.BurstSize = 5
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ResolveEndpoints fills unset base URLs from the page shell's meta values
// and then from the hardcoded local defaults. Config values always win.
func (c *Config) ResolveEndpoints(fromPage EndpointsConfig) EndpointsConfig {
	pick := func(values ...string) string {
		for _, v := range values {
			if v != "" {
				return v
			}
		}
		return ""
	}
	return EndpointsConfig{
		LLM:   pick(c.Endpoints.LLM, fromPage.LLM, DefaultLLMURL),
		RAG:   pick(c.Endpoints.RAG, fromPage.RAG, DefaultRAGURL),
		Audio: pick(c.Endpoints.Audio, fromPage.Audio, DefaultAudioURL),
	}
}
