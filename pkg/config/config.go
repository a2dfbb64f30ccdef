package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"news-crawler/pkg/utils"
)

// delayEnvVar overrides logic.delay_seconds when set. It is resolved once
// during Load so workers never consult the environment themselves.
const delayEnvVar = "CRAWL_DELAY_SECONDS"

// SourceConfig describes one content source: a root sitemap index plus the
// filters that decide which child sitemaps and leaf URLs belong to it.
type SourceConfig struct {
	Name                 string   `yaml:"name"`
	SitemapIndex         string   `yaml:"sitemap_index"`
	SitemapAllowPatterns []string `yaml:"sitemap_allow_patterns,omitempty"` // Case-insensitive substrings; empty = allow all
	AllowedPrefixes      []string `yaml:"allowed_prefixes,omitempty"`       // Required prefixes for normalized leaf URLs
}

// DBConfig locates the persistent store and names its two collections.
type DBConfig struct {
	Path            string `yaml:"path"`             // Badger directory
	QueueCollection string `yaml:"queue_collection"` // Key namespace for queue entries
	DocsCollection  string `yaml:"docs_collection"`  // Key namespace for documents
}

// LogicConfig holds the crawl policy knobs shared by discovery and the pool.
type LogicConfig struct {
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	UserAgent             string  `yaml:"user_agent"`
	MaxDocuments          int     `yaml:"max_documents"`      // Global document budget for a run
	RecrawlAfterHours     int     `yaml:"recrawl_after_hours"` // TTL before done entries are requeued
	DelaySeconds          float64 `yaml:"delay_seconds"`      // Inter-request politeness delay
	Workers               int     `yaml:"workers"`
	Retries               int     `yaml:"retries"`       // Retries after the first attempt, transport errors only
	MaxInFlight           int     `yaml:"max_in_flight"` // Cap on concurrent HTTP requests (0 = workers)
	RespectRobots         bool    `yaml:"respect_robots"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	DialerTimeout       time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive     time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// AppConfig is the immutable configuration built once at startup and passed
// to every component.
type AppConfig struct {
	DB                 DBConfig         `yaml:"db"`
	Logic              LogicConfig      `yaml:"logic"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Sources            []SourceConfig   `yaml:"sources"`
}

// SourceNames returns the configured source names in declaration order.
func (c *AppConfig) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// RequestTimeout converts the configured timeout into a time.Duration.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Logic.RequestTimeoutSeconds) * time.Second
}

// Delay converts the configured inter-request delay into a time.Duration.
func (c *AppConfig) Delay() time.Duration {
	return time.Duration(c.Logic.DelaySeconds * float64(time.Second))
}

// RecrawlTTL converts the recrawl threshold into a time.Duration.
func (c *AppConfig) RecrawlTTL() time.Duration {
	return time.Duration(c.Logic.RecrawlAfterHours) * time.Hour
}

// Load reads, parses, and validates the YAML configuration at path.
// The delay environment override is folded into the result here, so the
// returned config is the single source of truth for all components.
func Load(path string) (*AppConfig, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config file '%s': %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config file '%s': %w", path, err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}

	if override := strings.TrimSpace(os.Getenv(delayEnvVar)); override != "" {
		parsed, parseErr := strconv.ParseFloat(override, 64)
		if parseErr != nil {
			warnings = append(warnings, fmt.Sprintf(
				"ignoring invalid %s value %q: %v", delayEnvVar, override, parseErr))
		} else {
			cfg.Logic.DelaySeconds = max(0, parsed)
		}
	}

	return &cfg, warnings, nil
}

// requireNonEmpty is a small helper for fatal missing-key checks.
func requireNonEmpty(value, key string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", utils.ErrConfigValidation, key)
	}
	return nil
}
