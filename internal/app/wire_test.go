package app

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/cache/redis"
	"github.com/alanyoungcy/simlink/internal/config"
	"github.com/alanyoungcy/simlink/internal/session"
)

func TestNewDeviceStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "test:")

	ds, err := newDeviceStore(config.DeviceConfig{Store: "file", Path: "/tmp/dev"}, rc)
	require.NoError(t, err)
	assert.Equal(t, session.FileDeviceStore{Path: "/tmp/dev"}, ds)

	ds, err = newDeviceStore(config.DeviceConfig{Store: "redis"}, rc)
	require.NoError(t, err)
	assert.IsType(t, &redis.DeviceStore{}, ds)

	ds, err = newDeviceStore(config.DeviceConfig{Store: "memory"}, rc)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryDeviceStore{}, ds)

	_, err = newDeviceStore(config.DeviceConfig{Store: "etcd"}, rc)
	assert.Error(t, err)
}

func TestNewTokenSource(t *testing.T) {
	assert.Equal(t, session.StaticToken("tok"), newTokenSource(config.AuthConfig{
		AccessToken:        "tok",
		EncryptedTokenPath: "/secrets/token.json",
	}))
	assert.Equal(t, session.FileToken{Path: "/secrets/token.json", Password: "pw"}, newTokenSource(config.AuthConfig{
		EncryptedTokenPath: "/secrets/token.json",
		TokenPassword:      "pw",
	}))
	assert.Equal(t, session.StaticToken(""), newTokenSource(config.AuthConfig{}))
}

func TestNewRefresher(t *testing.T) {
	cfg := config.Defaults()
	assert.Nil(t, newRefresher(&cfg))

	cfg.Auth.RefreshURL = "https://auth.example.com/refresh"
	cfg.Auth.RefreshToken = "rt"
	r, ok := newRefresher(&cfg).(*session.HTTPRefresher)
	require.True(t, ok)
	assert.Equal(t, "rt", r.RefreshToken)
	assert.Nil(t, r.Signer)
	assert.Equal(t, cfg.Link.RefreshTimeout.Duration, r.Client.Timeout)

	cfg.Auth.ApiKey, cfg.Auth.ApiSecret = "k", "s"
	r = newRefresher(&cfg).(*session.HTTPRefresher)
	require.NotNil(t, r.Signer)
	assert.Equal(t, "k", r.Signer.Key)
}
