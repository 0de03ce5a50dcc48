package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/simlink/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the opening handshake.
	handshakeTimeout = 15 * time.Second

	// maxMessageSize caps a single inbound frame.
	maxMessageSize = 32 << 20
)

// CredentialSource resolves the parameters for the next connect.
type CredentialSource interface {
	Credentials(ctx context.Context) (domain.Credentials, error)
}

// Client owns at most one WebSocket to the simulator at a time.
//
// Concurrent Connect calls share one dial; late callers receive the result of
// the dial in flight. Every socket reports TransportDisconnected exactly once
// no matter how many of a local close, a server close and a read error race.
type Client struct {
	wsURL  string
	creds  CredentialSource
	dialer websocket.Dialer
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.Mutex
	sock   *socket
	status domain.Status
	nextID uint64

	subMu   sync.RWMutex
	subs    map[uint64]func(domain.TransportEvent)
	nextSub uint64
}

type socket struct {
	id      uint64
	conn    *websocket.Conn
	once    sync.Once
	writeMu sync.Mutex
}

// NewClient creates a client for wsURL, e.g. "wss://sim.example.com/ws".
func NewClient(wsURL string, creds CredentialSource, logger *slog.Logger) *Client {
	return &Client{
		wsURL:  wsURL,
		creds:  creds,
		dialer: websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger: logger.With(slog.String("component", "simulator_ws")),
		status: domain.StatusDisconnected,
		subs:   make(map[uint64]func(domain.TransportEvent)),
	}
}

// Connect opens the socket if it is not already open. It returns true once
// the socket is open.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	if c.Status() == domain.StatusConnected {
		return true, nil
	}
	v, err, _ := c.group.Do("connect", func() (any, error) {
		return c.dial(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Client) dial(ctx context.Context) (bool, error) {
	if c.Status() == domain.StatusConnected {
		return true, nil
	}

	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return false, fmt.Errorf("simulator/ws: credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return false, fmt.Errorf("simulator/ws: %w", domain.ErrAuthMissing)
	}
	target, err := BuildURL(c.wsURL, creds)
	if err != nil {
		return false, err
	}

	c.setStatus(domain.StatusConnecting)
	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.setStatus(domain.StatusDisconnected)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, fmt.Errorf("simulator/ws: handshake %d: %w", resp.StatusCode, domain.ErrUnauthorized)
		}
		return false, fmt.Errorf("simulator/ws: connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.nextID++
	sock := &socket{id: c.nextID, conn: conn}
	c.sock = sock
	c.status = domain.StatusConnected
	c.mu.Unlock()

	c.logger.Info("simulator socket open", slog.Uint64("socket", sock.id))
	c.emit(domain.TransportEvent{Kind: domain.TransportConnected, SocketID: sock.id})

	go c.readLoop(sock)
	return true, nil
}

// BuildURL appends the credential parameters to base. sessionId is only sent
// when resuming a known session.
func BuildURL(base string, creds domain.Credentials) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("simulator/ws: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", creds.AccessToken)
	q.Set("deviceId", creds.DeviceID)
	if creds.CSRFToken != "" {
		q.Set("csrfToken", creds.CSRFToken)
	}
	if creds.SessionID != "" {
		q.Set("sessionId", creds.SessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Send marshals v and writes it. It returns false if the socket is not open
// or the write fails.
func (c *Client) Send(v any) bool {
	sock := c.current()
	if sock == nil {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal outbound frame", slog.String("error", err.Error()))
		return false
	}

	sock.writeMu.Lock()
	defer sock.writeMu.Unlock()
	sock.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sock.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("write failed", slog.Uint64("socket", sock.id), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Disconnect closes the open socket with code. Calling it with no open
// socket is a no-op.
func (c *Client) Disconnect(code int, reason string) {
	sock := c.current()
	if sock == nil {
		return
	}
	sock.writeMu.Lock()
	_ = sock.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)
	sock.writeMu.Unlock()
	c.closed(sock, code, reason, true)
}

// Status returns the transport status.
func (c *Client) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe registers h for every transport event. Handlers run on the
// client's goroutines and must not block.
func (c *Client) Subscribe(h func(domain.TransportEvent)) domain.Subscription {
	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = h
	c.subMu.Unlock()
	return &clientSubscription{client: c, id: id}
}

type clientSubscription struct {
	client *Client
	id     uint64
	once   sync.Once
}

func (s *clientSubscription) Close() {
	s.once.Do(func() {
		s.client.subMu.Lock()
		delete(s.client.subs, s.id)
		s.client.subMu.Unlock()
	})
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (c *Client) current() *socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock
}

func (c *Client) setStatus(s domain.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) readLoop(sock *socket) {
	for {
		_, data, err := sock.conn.ReadMessage()
		if err != nil {
			code, reason, clean := closeInfo(err)
			c.closed(sock, code, reason, clean)
			return
		}
		c.emit(domain.TransportEvent{Kind: domain.TransportMessage, SocketID: sock.id, Data: data})
	}
}

// closed tears down sock and reports it once.
func (c *Client) closed(sock *socket, code int, reason string, clean bool) {
	sock.once.Do(func() {
		c.mu.Lock()
		if c.sock == sock {
			c.sock = nil
			c.status = domain.StatusDisconnected
		}
		c.mu.Unlock()

		_ = sock.conn.Close()
		c.logger.Info("simulator socket closed",
			slog.Uint64("socket", sock.id),
			slog.Int("code", code),
			slog.String("reason", reason),
			slog.Bool("clean", clean),
		)
		c.emit(domain.TransportEvent{
			Kind:     domain.TransportDisconnected,
			SocketID: sock.id,
			Code:     code,
			Reason:   reason,
			WasClean: clean,
		})
	})
}

func closeInfo(err error) (int, string, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return domain.CloseAbnormal, err.Error(), false
}

func (c *Client) emit(ev domain.TransportEvent) {
	c.subMu.RLock()
	handlers := make([]func(domain.TransportEvent), 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	c.subMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
