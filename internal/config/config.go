// Package config loads and validates redirector configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/click-redirector/internal/store"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Redirect  RedirectConfig  `mapstructure:"redirect"`
	Geo       GeoConfig       `mapstructure:"geo"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Links     []LinkConfig    `mapstructure:"links"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int    `mapstructure:"port"`
	PublicBaseURL            string `mapstructure:"public_base_url"`
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	ShutdownGraceSeconds     int    `mapstructure:"shutdown_grace_seconds"`
	// VideoDir is served at /videos/ when set.
	VideoDir string `mapstructure:"video_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// RedirectConfig holds the redirect chain policy.
type RedirectConfig struct {
	BlockedCountries      []string `mapstructure:"blocked_countries"`
	SafeURL               string   `mapstructure:"safe_url"`
	StealthPath           string   `mapstructure:"stealth_path"`
	VideoPath             string   `mapstructure:"video_path"`
	VideoAssets           []string `mapstructure:"video_assets"`
	VideoCountdownSeconds int      `mapstructure:"video_countdown_seconds"`
	StealthDelayMs        int      `mapstructure:"stealth_delay_ms"`
	// CrawlerSignatures extends the built-in preview bot list.
	CrawlerSignatures []string `mapstructure:"crawler_signatures"`
}

// GeoConfig configures country resolution.
type GeoConfig struct {
	DatabasePath         string   `mapstructure:"database_path"`
	LoopbackSubstitution bool     `mapstructure:"loopback_substitution"`
	LoopbackPool         []string `mapstructure:"loopback_pool"`
}

// LedgerConfig tunes the click ledger hub and its sinks.
type LedgerConfig struct {
	BufferSize        int         `mapstructure:"buffer_size"`
	Batch             BatchConfig `mapstructure:"batch"`
	SinkTimeoutMs     int         `mapstructure:"sink_timeout_ms"`
	LogEnabled        bool        `mapstructure:"log_enabled"`
	PrometheusEnabled bool        `mapstructure:"prometheus_enabled"`
}

// BatchConfig bounds a ledger flush.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// ArchiveConfig selects where click batches are archived.
type ArchiveConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalArchiveConfig `mapstructure:"local"`
}

// LocalArchiveConfig configures the filesystem backend.
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// BroadcastConfig configures the live traffic channel.
type BroadcastConfig struct {
	ClientBuffer        int    `mapstructure:"client_buffer"`
	PingIntervalSeconds int    `mapstructure:"ping_interval_seconds"`
	RedisAddr           string `mapstructure:"redis_addr"`
	RedisChannel        string `mapstructure:"redis_channel"`
}

// PubSubConfig holds metadata for click export. An empty project disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RateLimitConfig guards the short link route.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LinkConfig seeds the in-memory registry.
type LinkConfig struct {
	Slug           string `mapstructure:"slug"`
	TargetURL      string `mapstructure:"target_url"`
	Domain         string `mapstructure:"domain"`
	TrackerID      string `mapstructure:"tracker_id"`
	Network        string `mapstructure:"network"`
	UseLandingPage bool   `mapstructure:"use_landing_page"`
	OGImage        string `mapstructure:"og_image"`
	OGTitle        string `mapstructure:"og_title"`
	OGDescription  string `mapstructure:"og_description"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REDIRECTOR")
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
	// Empty defaults register keys so AutomaticEnv can override them.
	for _, key := range []string{
		"server.public_base_url", "server.video_dir", "geo.database_path",
		"archive.bucket", "archive.local.base_dir", "database.dsn",
		"broadcast.redis_addr", "pubsub.project_id", "pubsub.topic_name",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.shutdown_grace_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("redirect.blocked_countries", []string{"ID"})
	v.SetDefault("redirect.safe_url", "https://www.youtube.com/watch?v=rQ9YQJ3JpWw")
	v.SetDefault("redirect.stealth_path", "/_meetups/r.php")
	v.SetDefault("redirect.video_path", "/_video/landing")
	v.SetDefault("redirect.video_assets", []string{"/videos/video1.mp4", "/videos/video2.mp4"})
	v.SetDefault("redirect.video_countdown_seconds", 3)
	v.SetDefault("redirect.stealth_delay_ms", 100)
	v.SetDefault("geo.loopback_substitution", true)
	v.SetDefault("ledger.buffer_size", 4096)
	v.SetDefault("ledger.batch.max_events", 500)
	v.SetDefault("ledger.batch.max_wait_ms", 250)
	v.SetDefault("ledger.sink_timeout_ms", 5000)
	v.SetDefault("ledger.log_enabled", true)
	v.SetDefault("ledger.prometheus_enabled", true)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "clicks")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("broadcast.client_buffer", 64)
	v.SetDefault("broadcast.ping_interval_seconds", 54)
	v.SetDefault("broadcast.redis_channel", "redirector:live-traffic")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "click-redirector")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := validatePath("redirect.stealth_path", c.Redirect.StealthPath); err != nil {
		return err
	}
	if err := validatePath("redirect.video_path", c.Redirect.VideoPath); err != nil {
		return err
	}
	if c.Redirect.StealthPath == c.Redirect.VideoPath {
		return fmt.Errorf("redirect.stealth_path and redirect.video_path must differ")
	}
	if u, err := url.Parse(c.Redirect.SafeURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("redirect.safe_url must be an absolute http(s) URL")
	}
	switch c.Archive.Backend {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be > 0 when rate limiting is enabled")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name is required when pubsub.project_id is set")
	}
	seen := make(map[string]struct{}, len(c.Links))
	for i, l := range c.Links {
		if l.Slug == "" || l.TargetURL == "" {
			return fmt.Errorf("links[%d]: slug and target_url are required", i)
		}
		if _, dup := seen[l.Slug]; dup {
			return fmt.Errorf("links[%d]: duplicate slug %q", i, l.Slug)
		}
		seen[l.Slug] = struct{}{}
	}
	return nil
}

func validatePath(key, p string) error {
	if p == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return fmt.Errorf("%s must be a rooted path", key)
	}
	return nil
}

// StealthDelay converts the configured delay.
func (c RedirectConfig) StealthDelay() time.Duration {
	return time.Duration(c.StealthDelayMs) * time.Millisecond
}

// MaxBatchWait converts the configured batch wait.
func (c LedgerConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.Batch.MaxWaitMs) * time.Millisecond
}

// SinkTimeout converts the configured sink timeout.
func (c LedgerConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutMs) * time.Millisecond
}

// PingInterval converts the configured keepalive interval.
func (c BroadcastConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// ErrNoLinks is returned by SeedLinks when no links are configured.
var ErrNoLinks = errors.New("no seed links configured")

// SeedLinks converts the links section into registry rows.
func (c Config) SeedLinks() ([]store.Link, error) {
	if len(c.Links) == 0 {
		return nil, ErrNoLinks
	}
	out := make([]store.Link, 0, len(c.Links))
	for _, l := range c.Links {
		out = append(out, store.Link{
			Slug:           l.Slug,
			TargetURL:      l.TargetURL,
			Domain:         l.Domain,
			TrackerID:      l.TrackerID,
			Network:        l.Network,
			UseLandingPage: l.UseLandingPage,
			OGImage:        l.OGImage,
			OGTitle:        l.OGTitle,
			OGDescription:  l.OGDescription,
		})
	}
	return out, nil
}
