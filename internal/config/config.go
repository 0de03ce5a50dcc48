// Package config defines the top-level configuration for the simlink daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/simlink/internal/link"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIMLINK_* environment variables.
type Config struct {
	Simulator SimulatorConfig `toml:"simulator"`
	Auth      AuthConfig      `toml:"auth"`
	Device    DeviceConfig    `toml:"device"`
	Link      LinkConfig      `toml:"link"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SimulatorConfig holds the simulator endpoint and session parameters.
type SimulatorConfig struct {
	WsURL     string `toml:"ws_url"`
	CSRFToken string `toml:"csrf_token"`
	// SessionID resumes a known server session on the first connect.
	SessionID string `toml:"session_id"`
}

// AuthConfig holds the access-token sources.
type AuthConfig struct {
	AccessToken        string `toml:"access_token"`
	EncryptedTokenPath string `toml:"encrypted_token_path"`
	TokenPassword      string `toml:"token_password"`
	RefreshURL         string `toml:"refresh_url"`
	RefreshToken       string `toml:"refresh_token"`
	// ApiKey and ApiSecret sign refresh requests when both are set.
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
}

// DeviceConfig selects where the device id is persisted.
type DeviceConfig struct {
	// Store is one of "file", "redis" or "memory".
	Store string `toml:"store"`
	Path  string `toml:"path"`
	// LockTTL bounds how long a crashed process keeps the device lock.
	LockTTL duration `toml:"lock_ttl"`
}

// LinkConfig holds connection tuning. Zero values are filled by Defaults.
type LinkConfig struct {
	HeartbeatInterval    duration `toml:"heartbeat_interval"`
	HeartbeatTimeout     duration `toml:"heartbeat_timeout"`
	HeartbeatDeadAfter   int      `toml:"heartbeat_dead_after"`
	BreakerThreshold     int      `toml:"breaker_threshold"`
	BreakerCooldown      duration `toml:"breaker_cooldown"`
	BackoffBase          duration `toml:"backoff_base"`
	BackoffMax           duration `toml:"backoff_max"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	JitterFraction       float64  `toml:"jitter_fraction"`
	QualityGood          duration `toml:"quality_good"`
	QualityDegraded      duration `toml:"quality_degraded"`
	DialTimeout          duration `toml:"dial_timeout"`
	RefreshTimeout       duration `toml:"refresh_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// KeyPrefix namespaces every key and channel, e.g. "simlink:".
	KeyPrefix string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchivePrefix    string   `toml:"archive_prefix"`
	ArchiveInterval  duration `toml:"archive_interval"`
	// ArchiveRetention prunes archives older than this. Zero keeps them all.
	ArchiveRetention duration `toml:"archive_retention"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// ApiKey guards the control endpoints. Empty disables auth.
	ApiKey string `toml:"api_key"`
	// WSSource feeds the /ws hub: "redis" reads the shared event channel,
	// "direct" takes events straight from this process's relay.
	WSSource string `toml:"ws_source"`
}

// WebSocket hub event sources.
const (
	WSSourceRedis  = "redis"
	WSSourceDirect = "direct"
)

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// Link tuning comes from link.DefaultOptions so the numbers live in one place.
func Defaults() Config {
	lo := link.DefaultOptions()
	return Config{
		Simulator: SimulatorConfig{
			WsURL: "ws://localhost:8080/ws",
		},
		Device: DeviceConfig{
			Store:   "file",
			Path:    ".simlink/device_id",
			LockTTL: duration{30 * time.Second},
		},
		Link: LinkConfig{
			HeartbeatInterval:    duration{lo.Heartbeat.Interval},
			HeartbeatTimeout:     duration{lo.Heartbeat.Timeout},
			HeartbeatDeadAfter:   lo.Heartbeat.DeadAfter,
			BreakerThreshold:     lo.Breaker.Threshold,
			BreakerCooldown:      duration{lo.Breaker.Cooldown},
			BackoffBase:          duration{lo.Backoff.BaseDelay},
			BackoffMax:           duration{lo.Backoff.MaxDelay},
			MaxReconnectAttempts: lo.Backoff.MaxAttempts,
			JitterFraction:       lo.Backoff.JitterFraction,
			QualityGood:          duration{lo.Quality.Good},
			QualityDegraded:      duration{lo.Quality.Degraded},
			DialTimeout:          duration{lo.DialTimeout},
			RefreshTimeout:       duration{lo.RefreshTimeout},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "simlink:",
		},
		S3: S3Config{
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "simlink-data",
			ForcePathStyle:   true,
			ArchivePrefix:    "snapshots",
			ArchiveInterval:  duration{15 * time.Minute},
			ArchiveRetention: duration{7 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			WSSource:    WSSourceRedis,
		},
		Notify: NotifyConfig{
			Events: []string{"max_reconnect_attempts", "device_id_invalidated", "session_deactivated", "logged_out", "circuit_open"},
		},
		Mode:     "stream",
		LogLevel: "info",
	}
}

// LinkOptions converts the link section into engine options.
func (c *Config) LinkOptions() link.Options {
	l := c.Link
	return link.Options{
		Heartbeat: link.HeartbeatOptions{
			Interval:  l.HeartbeatInterval.Duration,
			Timeout:   l.HeartbeatTimeout.Duration,
			DeadAfter: l.HeartbeatDeadAfter,
		},
		Breaker: link.BreakerOptions{
			Threshold: l.BreakerThreshold,
			Cooldown:  l.BreakerCooldown.Duration,
		},
		Backoff: link.BackoffOptions{
			BaseDelay:      l.BackoffBase.Duration,
			MaxDelay:       l.BackoffMax.Duration,
			MaxAttempts:    l.MaxReconnectAttempts,
			JitterFraction: l.JitterFraction,
		},
		Quality:        link.Thresholds{Good: l.QualityGood.Duration, Degraded: l.QualityDegraded.Duration},
		DialTimeout:    l.DialTimeout.Duration,
		RefreshTimeout: l.RefreshTimeout.Duration,
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"stream": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDeviceStores = map[string]bool{
	"file":   true,
	"redis":  true,
	"memory": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: stream, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Simulator
	if u, err := url.Parse(c.Simulator.WsURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Sprintf("simulator: ws_url must be a ws:// or wss:// URL, got %q", c.Simulator.WsURL))
	}

	// Auth: at least one token source.
	if c.Auth.AccessToken == "" && c.Auth.EncryptedTokenPath == "" {
		errs = append(errs, "auth: either access_token or encrypted_token_path must be set")
	}
	if c.Auth.EncryptedTokenPath != "" && c.Auth.TokenPassword == "" {
		errs = append(errs, "auth: token_password is required when encrypted_token_path is set")
	}
	if c.Auth.RefreshURL != "" && c.Auth.RefreshToken == "" {
		errs = append(errs, "auth: refresh_token is required when refresh_url is set")
	}
	if (c.Auth.ApiKey == "") != (c.Auth.ApiSecret == "") {
		errs = append(errs, "auth: api_key and api_secret must be set together")
	}

	// Device
	if !validDeviceStores[c.Device.Store] {
		errs = append(errs, fmt.Sprintf("device: unknown store %q (valid: file, redis, memory)", c.Device.Store))
	}
	if c.Device.Store == "file" && c.Device.Path == "" {
		errs = append(errs, "device: path must be set for the file store")
	}

	// Link
	l := c.Link
	if l.HeartbeatInterval.Duration <= 0 || l.HeartbeatTimeout.Duration <= 0 {
		errs = append(errs, "link: heartbeat_interval and heartbeat_timeout must be > 0")
	}
	if l.HeartbeatTimeout.Duration >= l.HeartbeatInterval.Duration {
		errs = append(errs, "link: heartbeat_timeout must be shorter than heartbeat_interval")
	}
	if l.HeartbeatDeadAfter < 1 {
		errs = append(errs, "link: heartbeat_dead_after must be >= 1")
	}
	if l.BreakerThreshold < 1 {
		errs = append(errs, "link: breaker_threshold must be >= 1")
	}
	if l.BreakerCooldown.Duration <= 0 {
		errs = append(errs, "link: breaker_cooldown must be > 0")
	}
	if l.BackoffBase.Duration <= 0 || l.BackoffMax.Duration < l.BackoffBase.Duration {
		errs = append(errs, "link: backoff_base must be > 0 and not exceed backoff_max")
	}
	if l.MaxReconnectAttempts < 1 {
		errs = append(errs, "link: max_reconnect_attempts must be >= 1")
	}
	if l.JitterFraction < 0 || l.JitterFraction > 1 {
		errs = append(errs, "link: jitter_fraction must be within [0, 1]")
	}
	if l.QualityGood.Duration <= 0 || l.QualityDegraded.Duration <= l.QualityGood.Duration {
		errs = append(errs, "link: quality_good must be > 0 and below quality_degraded")
	}

	// Postgres is only needed for the journal in full mode.
	if c.Mode == "full" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}

		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.WSSource != WSSourceRedis && c.Server.WSSource != WSSourceDirect {
			errs = append(errs, fmt.Sprintf("server: ws_source must be redis or direct, got %q", c.Server.WSSource))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
