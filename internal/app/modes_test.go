package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/config"
	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

func TestNewHubSource(t *testing.T) {
	status := func() domain.Connection { return domain.Connection{} }

	hub, sinks := newHub(config.WSSourceDirect, nil, status, testutil.Logger())
	require.NotNil(t, hub)
	require.Len(t, sinks, 1, "direct hub is fed by the relay")
	assert.Same(t, hub, sinks[0])
	assert.Equal(t, "ws_hub", sinks[0].Name())

	hub, sinks = newHub(config.WSSourceRedis, nil, status, testutil.Logger())
	require.NotNil(t, hub)
	assert.Empty(t, sinks, "redis hub reads the event channel instead")
}
