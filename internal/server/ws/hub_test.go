package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/relay"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(Config{
		Status: func() domain.Connection {
			return domain.Connection{Status: domain.StatusConnected, Quality: domain.QualityGood}
		},
	}, testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHubSendsStatusThenEvents(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	status := readJSON(t, conn)
	assert.Equal(t, "status", status["kind"])
	payload := status["payload"].(map[string]any)
	assert.Equal(t, "CONNECTED", payload["connection"].(map[string]any)["status"])

	require.NoError(t, hub.Handle(context.Background(), domain.Event{
		Kind:    domain.EventReconnecting,
		Attempt: 2,
	}))
	ev := readJSON(t, conn)
	assert.Equal(t, "reconnecting", ev["kind"])
	assert.Equal(t, float64(2), ev["attempt"])
}

func TestHubFiltersByEventQuery(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?events=logged_out")
	readJSON(t, conn)

	require.NoError(t, hub.Handle(context.Background(), domain.Event{Kind: domain.EventStateChange}))
	require.NoError(t, hub.Handle(context.Background(), domain.Event{Kind: domain.EventLoggedOut}))

	ev := readJSON(t, conn)
	assert.Equal(t, "logged_out", ev["kind"])
}

func TestHubSubscribeMessage(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?events=logged_out")
	readJSON(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Events: []string{"data_updated"}}))

	// The subscription is applied asynchronously; keep publishing until
	// the client sees one.
	deadline := time.Now().Add(2 * time.Second)
	got := make(chan map[string]any, 1)
	go func() {
		var m map[string]any
		if err := conn.ReadJSON(&m); err == nil {
			got <- m
		}
	}()
	for time.Now().Before(deadline) {
		require.NoError(t, hub.Handle(context.Background(), domain.Event{Kind: domain.EventDataUpdated}))
		select {
		case m := <-got:
			assert.Equal(t, "data_updated", m["kind"])
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("subscription never applied")
}

func TestHubFedByRelay(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Equal(t, "status", readJSON(t, conn)["kind"])

	rel := relay.New(8, testutil.Logger(), hub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rel.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	rel.Enqueue(domain.Event{Kind: domain.EventLoggedOut, Err: "refresh rejected"})
	ev := readJSON(t, conn)
	assert.Equal(t, "logged_out", ev["kind"])
	assert.Equal(t, "refresh rejected", ev["error"])
}
