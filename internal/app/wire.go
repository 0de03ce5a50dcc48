package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	s3blob "github.com/alanyoungcy/simlink/internal/blob/s3"
	"github.com/alanyoungcy/simlink/internal/cache/redis"
	"github.com/alanyoungcy/simlink/internal/config"
	"github.com/alanyoungcy/simlink/internal/crypto"
	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/notify"
	"github.com/alanyoungcy/simlink/internal/session"
	"github.com/alanyoungcy/simlink/internal/store/postgres"
)

// deviceStoreName is the Redis key suffix of the persisted device id.
const deviceStoreName = "default"

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Caches
	SignalBus     *redis.SignalBus
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager

	// Session
	DeviceStore domain.DeviceStore
	Tokens      session.TokenSource
	Refresher   session.Refresher

	// Stores (full mode)
	Journal      domain.JournalStore
	ArchiveIndex domain.ArchiveIndex

	// Blob storage (full mode)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool { return mode == ModeFull }

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool { return mode == ModeFull }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Journal = postgres.NewJournalStore(pool)
		deps.ArchiveIndex = postgres.NewArchiveIndex(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: s3 bucket not reachable yet",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client, s3blob.DefaultWriterOptions())
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Session ---
	deviceStore, err := newDeviceStore(cfg.Device, redisClient)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.DeviceStore = deviceStore
	deps.Tokens = newTokenSource(cfg.Auth)
	deps.Refresher = newRefresher(cfg)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newDeviceStore selects the device id store named in the config.
func newDeviceStore(cfg config.DeviceConfig, rc *redis.Client) (domain.DeviceStore, error) {
	switch cfg.Store {
	case "", "file":
		return session.FileDeviceStore{Path: cfg.Path}, nil
	case "redis":
		return redis.NewDeviceStore(rc, deviceStoreName), nil
	case "memory":
		return &session.MemoryDeviceStore{}, nil
	default:
		return nil, fmt.Errorf("unknown device store %q", cfg.Store)
	}
}

// newTokenSource prefers an inline token over the encrypted token file.
func newTokenSource(cfg config.AuthConfig) session.TokenSource {
	if cfg.AccessToken != "" || cfg.EncryptedTokenPath == "" {
		return session.StaticToken(cfg.AccessToken)
	}
	return session.FileToken{Path: cfg.EncryptedTokenPath, Password: cfg.TokenPassword}
}

// newRefresher returns nil when no refresh endpoint is configured, which
// turns every auth fault into a logout.
func newRefresher(cfg *config.Config) session.Refresher {
	if cfg.Auth.RefreshURL == "" {
		return nil
	}
	r := &session.HTTPRefresher{
		URL:          cfg.Auth.RefreshURL,
		RefreshToken: cfg.Auth.RefreshToken,
		Client:       &http.Client{Timeout: cfg.Link.RefreshTimeout.Duration},
	}
	if cfg.Auth.ApiKey != "" && cfg.Auth.ApiSecret != "" {
		r.Signer = &crypto.RequestSigner{Key: cfg.Auth.ApiKey, Secret: cfg.Auth.ApiSecret}
	}
	return r
}
