// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs crawl bounds and page retrieval.
type CrawlerConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	UserAgent            string        `mapstructure:"user_agent"`
	RespectRobots        bool          `mapstructure:"respect_robots"`
	MaxDepth             int           `mapstructure:"max_depth"`
	MaxFanout            int           `mapstructure:"max_fanout"`
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyChars         int           `mapstructure:"max_body_chars"`
	MaxBodyBytes         int           `mapstructure:"max_body_bytes"`
	ContentSelector      string        `mapstructure:"content_selector"`
}

// HTTPConfig configures fetch retry behavior.
type HTTPConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// RateLimitConfig sets the per-host request budget.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DatabaseConfig selects and tunes the article store.
type DatabaseConfig struct {
	// Backend is "memory" or "postgres".
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	ArticlesTable   string        `mapstructure:"articles_table"`
	SummariesTable  string        `mapstructure:"summaries_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ArchiveConfig controls raw page archiving.
type ArchiveConfig struct {
	// Backend is "none", "memory", "local" or "gcs".
	Backend  string `mapstructure:"backend"`
	Prefix   string `mapstructure:"prefix"`
	Bucket   string `mapstructure:"bucket"`
	LocalDir string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	// Backend is "none", "memory" or "gcp".
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SummaryConfig configures the LLM summarizer.
type SummaryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Provider      string        `mapstructure:"provider"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WIKICRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvAliases(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.request_timeout", "2m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.base_url", "https://ru.wikipedia.org/wiki/")
	v.SetDefault("crawler.user_agent", "wikicrawler/0.1 (+https://github.com/JakeFAU/wikicrawler)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_depth", crawler.DefaultMaxDepth)
	v.SetDefault("crawler.max_fanout", crawler.DefaultMaxFanout)
	v.SetDefault("crawler.max_concurrent_fetches", crawler.DefaultMaxConcurrentFetches)
	v.SetDefault("crawler.fetch_timeout", crawler.DefaultFetchTimeout.String())
	v.SetDefault("crawler.max_body_chars", crawler.DefaultMaxBodyChars)
	v.SetDefault("crawler.max_body_bytes", 8<<20)
	v.SetDefault("crawler.content_selector", crawler.DefaultContentSelector)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_base", "250ms")
	v.SetDefault("http.backoff_max", "2s")
	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.articles_table", "articles")
	v.SetDefault("database.summaries_table", "summaries")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.local_dir", "./data/archive")
	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "wikicrawler-articles")
	v.SetDefault("summary.enabled", false)
	v.SetDefault("summary.provider", "deepseek")
	v.SetDefault("summary.base_url", "")
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.model", "")
	v.SetDefault("summary.system_prompt", "")
	v.SetDefault("summary.max_input_chars", 8000)
	v.SetDefault("summary.max_tokens", 512)
	v.SetDefault("summary.timeout", "60s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// bindEnvAliases accepts the conventional unprefixed variables for secrets.
func bindEnvAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"database.dsn":    {"WIKICRAWLER_DATABASE_DSN", "DATABASE_URL"},
		"summary.api_key": {"WIKICRAWLER_SUMMARY_API_KEY", "DEEPSEEK_API_KEY"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if !strings.HasPrefix(c.Crawler.BaseURL, "http://") && !strings.HasPrefix(c.Crawler.BaseURL, "https://") {
		return fmt.Errorf("crawler.base_url must be an http(s) URL")
	}
	if err := c.CrawlConfig().Validate(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be >= 0")
	}
	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("database.backend must be memory or postgres, got %q", c.Database.Backend)
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be none, memory, local or gcs, got %q", c.Archive.Backend)
	}
	switch c.PubSub.Backend {
	case "", "none", "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be none, memory or gcp, got %q", c.PubSub.Backend)
	}
	if c.Summary.Enabled && c.Summary.APIKey == "" {
		return fmt.Errorf("summary.api_key must be set when summaries are enabled")
	}
	return nil
}

// CrawlConfig converts the crawler section into default crawl bounds.
func (c Config) CrawlConfig() crawler.Config {
	return crawler.Config{
		MaxDepth:             c.Crawler.MaxDepth,
		MaxFanout:            c.Crawler.MaxFanout,
		MaxConcurrentFetches: c.Crawler.MaxConcurrentFetches,
		FetchTimeout:         c.Crawler.FetchTimeout,
	}
}
