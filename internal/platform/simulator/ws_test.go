package simulator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

type staticCreds domain.Credentials

func (s staticCreds) Credentials(context.Context) (domain.Credentials, error) {
	return domain.Credentials(s), nil
}

// simServer is a minimal simulator endpoint. It records the query of every
// handshake and queues each server-side connection on conns.
type simServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []string
	conns   chan *websocket.Conn
	status  int
	opens   int
}

func newSimServer(t *testing.T) *simServer {
	s := &simServer{conns: make(chan *websocket.Conn, 4)}
	up := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.RawQuery)
		status := s.status
		s.opens++
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- c
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *simServer) wsURL() string { return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" }

type recorder struct {
	mu     sync.Mutex
	events []domain.TransportEvent
	ch     chan domain.TransportEvent
}

func newRecorder() *recorder { return &recorder{ch: make(chan domain.TransportEvent, 16)} }

func (r *recorder) handle(ev domain.TransportEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) next(t *testing.T, kind domain.TransportEventKind) domain.TransportEvent {
	t.Helper()
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func (r *recorder) count(kind domain.TransportEventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func creds() staticCreds {
	return staticCreds{SessionID: "s-1", DeviceID: "dev-1", CSRFToken: "csrf-1", AccessToken: "tok-1"}
}

func TestClientConnectSendsCredentials(t *testing.T) {
	srv := newSimServer(t)
	c := NewClient(srv.wsURL(), creds(), testutil.Logger())
	rec := newRecorder()
	c.Subscribe(rec.handle)

	ok, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusConnected, c.Status())
	rec.next(t, domain.TransportConnected)

	srv.mu.Lock()
	q := srv.queries[0]
	srv.mu.Unlock()
	assert.Contains(t, q, "token=tok-1")
	assert.Contains(t, q, "deviceId=dev-1")
	assert.Contains(t, q, "csrfToken=csrf-1")
	assert.Contains(t, q, "sessionId=s-1")

	server := <-srv.conns
	require.True(t, c.Send(NewHeartbeat(42, "dev-1")))
	_, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat","timestamp":42,"deviceId":"dev-1"}`, string(data))

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"session_info","sessionId":"s-1","podName":"p"}`)))
	msg := rec.next(t, domain.TransportMessage)
	frame, err := ParseFrame(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, FrameSessionInfo, frame.Kind)
}

func TestClientConcurrentConnectOpensOneSocket(t *testing.T) {
	srv := newSimServer(t)
	c := NewClient(srv.wsURL(), creds(), testutil.Logger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Connect(context.Background())
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, 1, srv.opens)
}

func TestClientMissingTokenFailsWithoutDial(t *testing.T) {
	srv := newSimServer(t)
	cr := creds()
	cr.AccessToken = ""
	c := NewClient(srv.wsURL(), cr, testutil.Logger())

	ok, err := c.Connect(context.Background())
	assert.False(t, ok)
	require.ErrorIs(t, err, domain.ErrAuthMissing)
	srv.mu.Lock()
	assert.Zero(t, srv.opens)
	srv.mu.Unlock()
}

func TestClientUnauthorizedHandshake(t *testing.T) {
	srv := newSimServer(t)
	srv.status = http.StatusUnauthorized
	c := NewClient(srv.wsURL(), creds(), testutil.Logger())

	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.StatusDisconnected, c.Status())
}

func TestClientDisconnectedOncePerSocket(t *testing.T) {
	srv := newSimServer(t)
	c := NewClient(srv.wsURL(), creds(), testutil.Logger())
	rec := newRecorder()
	c.Subscribe(rec.handle)

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	server := <-srv.conns

	c.Disconnect(domain.CloseHeartbeatDead, "heartbeat timeout")
	_ = server.Close()
	ev := rec.next(t, domain.TransportDisconnected)
	assert.Equal(t, domain.CloseHeartbeatDead, ev.Code)
	assert.True(t, ev.WasClean)

	c.Disconnect(domain.CloseNormal, "again")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count(domain.TransportDisconnected))
	assert.False(t, c.Send(NewHeartbeat(1, "d")), "send fails on a closed socket")
}

func TestClientServerClose(t *testing.T) {
	srv := newSimServer(t)
	c := NewClient(srv.wsURL(), creds(), testutil.Logger())
	rec := newRecorder()
	c.Subscribe(rec.handle)

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	server := <-srv.conns

	require.NoError(t, server.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "pod draining"), time.Now().Add(time.Second)))
	ev := rec.next(t, domain.TransportDisconnected)
	assert.Equal(t, domain.CloseGoingAway, ev.Code)
	assert.Equal(t, "pod draining", ev.Reason)
	assert.Equal(t, domain.StatusDisconnected, c.Status())
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"heartbeat_ack","clientTimestamp":7,"deviceIdValid":false,"simulatorStatus":"UP","podName":"p1"}`))
	require.NoError(t, err)
	require.Equal(t, FrameHeartbeatAck, f.Kind)
	assert.Equal(t, int64(7), f.Ack.ClientTimestamp)
	require.NotNil(t, f.Ack.DeviceIDValid)
	assert.False(t, *f.Ack.DeviceIDValid)
	assert.Equal(t, "p1", f.Ack.PodName)

	f, err = ParseFrame([]byte(`{"type":"exchange_data","deltaType":"DELTA","sequence":3,"compressed":true,"data":{"algorithm":"gzip","payload":""}}`))
	require.NoError(t, err)
	require.Equal(t, FrameExchangeData, f.Kind)
	assert.Equal(t, domain.DeltaDelta, f.Delta.Type)
	assert.Equal(t, uint64(3), f.Delta.Sequence)
	assert.True(t, f.Delta.Compressed)

	f, err = ParseFrame([]byte(`{"type":"something_new"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameUnknown, f.Kind)

	_, err = ParseFrame([]byte(`{"type":`))
	assert.True(t, errors.Is(err, domain.ErrMalformedFrame))
	_, err = ParseFrame([]byte(`{"sequence":1}`))
	assert.True(t, errors.Is(err, domain.ErrMalformedFrame))
}

func TestBuildURLOmitsEmptySession(t *testing.T) {
	u, err := BuildURL("wss://sim.example.com/ws?v=2", domain.Credentials{DeviceID: "d", AccessToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, "wss://sim.example.com/ws?deviceId=d&token=t&v=2", u)
}
