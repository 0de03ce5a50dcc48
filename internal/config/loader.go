package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIMLINK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIMLINK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Simulator ──
	setStr(&cfg.Simulator.WsURL, "SIMLINK_SIMULATOR_WS_URL")
	setStr(&cfg.Simulator.CSRFToken, "SIMLINK_SIMULATOR_CSRF_TOKEN")
	setStr(&cfg.Simulator.SessionID, "SIMLINK_SIMULATOR_SESSION_ID")

	// ── Auth ──
	setStr(&cfg.Auth.AccessToken, "SIMLINK_AUTH_ACCESS_TOKEN")
	setStr(&cfg.Auth.EncryptedTokenPath, "SIMLINK_AUTH_ENCRYPTED_TOKEN_PATH")
	setStr(&cfg.Auth.TokenPassword, "SIMLINK_AUTH_TOKEN_PASSWORD")
	setStr(&cfg.Auth.RefreshURL, "SIMLINK_AUTH_REFRESH_URL")
	setStr(&cfg.Auth.RefreshToken, "SIMLINK_AUTH_REFRESH_TOKEN")
	setStr(&cfg.Auth.ApiKey, "SIMLINK_AUTH_API_KEY")
	setStr(&cfg.Auth.ApiSecret, "SIMLINK_AUTH_API_SECRET")

	// ── Device ──
	setStr(&cfg.Device.Store, "SIMLINK_DEVICE_STORE")
	setStr(&cfg.Device.Path, "SIMLINK_DEVICE_PATH")
	setDuration(&cfg.Device.LockTTL, "SIMLINK_DEVICE_LOCK_TTL")

	// ── Link ──
	setDuration(&cfg.Link.HeartbeatInterval, "SIMLINK_LINK_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Link.HeartbeatTimeout, "SIMLINK_LINK_HEARTBEAT_TIMEOUT")
	setInt(&cfg.Link.HeartbeatDeadAfter, "SIMLINK_LINK_HEARTBEAT_DEAD_AFTER")
	setInt(&cfg.Link.BreakerThreshold, "SIMLINK_LINK_BREAKER_THRESHOLD")
	setDuration(&cfg.Link.BreakerCooldown, "SIMLINK_LINK_BREAKER_COOLDOWN")
	setDuration(&cfg.Link.BackoffBase, "SIMLINK_LINK_BACKOFF_BASE")
	setDuration(&cfg.Link.BackoffMax, "SIMLINK_LINK_BACKOFF_MAX")
	setInt(&cfg.Link.MaxReconnectAttempts, "SIMLINK_LINK_MAX_RECONNECT_ATTEMPTS")
	setFloat64(&cfg.Link.JitterFraction, "SIMLINK_LINK_JITTER_FRACTION")
	setDuration(&cfg.Link.QualityGood, "SIMLINK_LINK_QUALITY_GOOD")
	setDuration(&cfg.Link.QualityDegraded, "SIMLINK_LINK_QUALITY_DEGRADED")
	setDuration(&cfg.Link.DialTimeout, "SIMLINK_LINK_DIAL_TIMEOUT")
	setDuration(&cfg.Link.RefreshTimeout, "SIMLINK_LINK_REFRESH_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIMLINK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SIMLINK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIMLINK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIMLINK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIMLINK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIMLINK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIMLINK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIMLINK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIMLINK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIMLINK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SIMLINK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIMLINK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIMLINK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIMLINK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIMLINK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIMLINK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "SIMLINK_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SIMLINK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIMLINK_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIMLINK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIMLINK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIMLINK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIMLINK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIMLINK_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchivePrefix, "SIMLINK_S3_ARCHIVE_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "SIMLINK_S3_ARCHIVE_INTERVAL")
	setDuration(&cfg.S3.ArchiveRetention, "SIMLINK_S3_ARCHIVE_RETENTION")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SIMLINK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SIMLINK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SIMLINK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "SIMLINK_SERVER_API_KEY")
	setStr(&cfg.Server.WSSource, "SIMLINK_SERVER_WS_SOURCE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIMLINK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIMLINK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIMLINK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIMLINK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIMLINK_MODE")
	setStr(&cfg.LogLevel, "SIMLINK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
