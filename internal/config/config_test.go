package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/link"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simlink.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsMatchLinkOptions(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, link.DefaultOptions(), cfg.LinkOptions())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "full"

[simulator]
ws_url = "wss://sim.example.com/ws"

[auth]
access_token = "tok"

[link]
heartbeat_interval = "15s"
max_reconnect_attempts = 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "wss://sim.example.com/ws", cfg.Simulator.WsURL)
	assert.Equal(t, 15*time.Second, cfg.Link.HeartbeatInterval.Duration)
	assert.Equal(t, 5, cfg.Link.MaxReconnectAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Link.HeartbeatTimeout.Duration)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `[auth]
access_token = "from-file"
`)
	t.Setenv("SIMLINK_AUTH_ACCESS_TOKEN", "from-env")
	t.Setenv("SIMLINK_LINK_BREAKER_COOLDOWN", "2m")
	t.Setenv("SIMLINK_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("SIMLINK_REDIS_DB", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.AccessToken)
	assert.Equal(t, 2*time.Minute, cfg.Link.BreakerCooldown.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 0, cfg.Redis.DB, "unparsable values are ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Simulator.WsURL = "http://sim"
	cfg.Link.HeartbeatTimeout = duration{time.Minute}
	cfg.Link.JitterFraction = 2
	cfg.Server.WSSource = "kafka"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		"simulator: ws_url",
		"auth: either access_token",
		"heartbeat_timeout must be shorter",
		"jitter_fraction",
		`ws_source must be redis or direct, got "kafka"`,
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %s", want, msg)
	}
}

func TestValidateStreamModeSkipsStorage(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.AccessToken = "tok"
	cfg.Postgres.Host = ""
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "full"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.AccessToken = "secret"
	cfg.Auth.ApiKey = "public-key"
	cfg.Redis.Password = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Auth.AccessToken)
	assert.Equal(t, "public-key", out.Auth.ApiKey)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "secret", cfg.Auth.AccessToken, "original untouched")

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
