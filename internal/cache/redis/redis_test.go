package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, "test:"), mr
}

func TestSnapshotCache(t *testing.T) {
	c, mr := newTestClient(t)
	sc := NewSnapshotCache(c)
	ctx := context.Background()

	_, err := sc.GetSnapshot(ctx, "dev-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.Snapshot{
		Sequence: 9,
		Data: map[string]any{
			"equities": map[string]any{"AAPL": map[string]any{"price": json.Number("187.5")}},
		},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, sc.SetSnapshot(ctx, "dev-1", snap))
	assert.True(t, mr.Exists("test:snapshot:dev-1"))

	got, err := sc.GetSnapshot(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Sequence, got.Sequence)
	assert.True(t, snap.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, json.Number("187.5"), got.Equities()["AAPL"].(map[string]any)["price"])

	conn := domain.Connection{Status: domain.StatusConnected, Quality: domain.QualityGood, PodName: "pod-a"}
	require.NoError(t, sc.SetConnection(ctx, "dev-1", conn))
	gotConn, err := sc.GetConnection(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, conn, gotConn)

	mr.FastForward(25 * time.Hour)
	_, err = sc.GetConnection(ctx, "dev-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeviceStore(t *testing.T) {
	c, _ := newTestClient(t)
	ds := NewDeviceStore(c, "default")
	ctx := context.Background()

	_, err := ds.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, ds.Save(ctx, "dev-9"))
	id, err := ds.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev-9", id)

	require.NoError(t, ds.Clear(ctx))
	_, err = ds.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "device:dev-1", 30*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "device:dev-1", 30*time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("test:lock:device:dev-1"))

	unlock2, err := lm.Acquire(ctx, "device:dev-1", 30*time.Second)
	require.NoError(t, err)
	defer unlock2()
}

func TestLockUnlockKeepsForeignHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)

	// Another holder took over after expiry.
	require.NoError(t, mr.Set("test:lock:k", "someone-else"))
	unlock()
	v, err := mr.Get("test:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "reconnect", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "reconnect", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = rl.Allow(ctx, "reconnect", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusPublishEvent(t *testing.T) {
	c, _ := newTestClient(t)
	sb := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := sb.Subscribe(ctx, EventChannel)
	require.NoError(t, err)
	kinds, err := sb.Subscribe(ctx, EventChannel+":*")
	require.NoError(t, err)

	ev := domain.Event{Kind: domain.EventLoggedOut, At: time.Unix(10, 0).UTC(), Err: "refresh failed"}
	require.NoError(t, sb.PublishEvent(ctx, ev))

	for _, ch := range []<-chan []byte{all, kinds} {
		select {
		case payload := <-ch:
			var got map[string]any
			require.NoError(t, json.Unmarshal(payload, &got))
			assert.Equal(t, "logged_out", got["kind"])
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
		}
	}

	msgs, err := sb.StreamRead(ctx, EventStream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].Payload), "refresh failed")
}

func TestSignalBusNonTerminalEventsSkipJournal(t *testing.T) {
	c, _ := newTestClient(t)
	sb := NewSignalBus(c)
	ctx := context.Background()

	require.NoError(t, sb.PublishEvent(ctx, domain.Event{Kind: domain.EventHeartbeatTimeout}))
	msgs, err := sb.StreamRead(ctx, EventStream, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
