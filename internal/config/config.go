// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	DB       DBConfig       `mapstructure:"db"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the status API listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlConfig governs scheduler and worker pool behavior.
type CrawlConfig struct {
	Source            string  `mapstructure:"source"`
	Concurrency       int     `mapstructure:"concurrency"`
	MaxItems          int     `mapstructure:"max_items"`
	MaxRetries        int     `mapstructure:"max_retries"`
	ItemTimeoutSec    int     `mapstructure:"item_timeout_seconds"`
	StalenessHours    int     `mapstructure:"staleness_hours"`
	SourceRPS         float64 `mapstructure:"source_rps"`
	SourceBurst       int     `mapstructure:"source_burst"`
	UserAgent         string  `mapstructure:"user_agent"`
	IncludeTracking   bool    `mapstructure:"include_tracking"`
	DiscoveryHeadless bool    `mapstructure:"discovery_headless"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifeMins int    `mapstructure:"max_conn_life_minutes"`
}

// SnapshotConfig sets where raw page bodies are archived.
type SnapshotConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"` // gcs | local | memory
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for price-change event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("crawl.concurrency", 20)
	v.SetDefault("crawl.max_retries", 2)
	v.SetDefault("crawl.item_timeout_seconds", 30)
	v.SetDefault("crawl.staleness_hours", 0) // 0 = start of current day
	v.SetDefault("crawl.source_rps", 2)
	v.SetDefault("crawl.source_burst", 1)
	v.SetDefault("crawl.user_agent", "pricewatch-bot/1.0")
	v.SetDefault("crawl.discovery_headless", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_life_minutes", 30)
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.backend", "local")
	v.SetDefault("snapshot.local_dir", "data/snapshots")
	v.SetDefault("snapshot.prefix", "pages")
	v.SetDefault("snapshot.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("crawl.max_retries must be >= 0")
	}
	if c.Crawl.ItemTimeoutSec <= 0 {
		return fmt.Errorf("crawl.item_timeout_seconds must be > 0")
	}
	switch c.Snapshot.Backend {
	case "gcs", "local", "memory":
	default:
		return fmt.Errorf("snapshot.backend must be one of gcs, local, memory")
	}
	if c.Snapshot.Enabled && c.Snapshot.Backend == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket must be set for the gcs backend")
	}
	return nil
}

// ItemTimeout converts the per-item timeout into a duration.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.Crawl.ItemTimeoutSec) * time.Second
}

// StalenessBefore computes the refresh threshold relative to now. With
// staleness_hours unset it is the start of the current calendar day.
func (c Config) StalenessBefore(now time.Time) time.Time {
	if c.Crawl.StalenessHours > 0 {
		return now.Add(-time.Duration(c.Crawl.StalenessHours) * time.Hour)
	}
	return now.UTC().Truncate(24 * time.Hour)
}
