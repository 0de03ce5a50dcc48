package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifierFiltersByEvent(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"logged_out", " circuit_open "}, testutil.Logger())
	ctx := context.Background()

	require.NoError(t, n.NotifyEvent(ctx, "dev-1", domain.Event{Kind: domain.EventLoggedOut, Err: "refresh rejected"}))
	require.NoError(t, n.NotifyEvent(ctx, "dev-1", domain.Event{Kind: domain.EventMaxReconnectAttempts}))
	require.NoError(t, n.NotifyEvent(ctx, "dev-1", domain.Event{Kind: domain.EventCircuitOpen, Remaining: time.Minute}))

	assert.Equal(t, []string{"simlink: logged out", "simlink: circuit open"}, s.titles)
	assert.Contains(t, s.bodies[0], "error: refresh rejected")
	assert.Contains(t, s.bodies[1], "cooldown: 1m0s")
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, testutil.Logger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.titles, 1, "one failing sender does not block the rest")
}

func TestAlertable(t *testing.T) {
	assert.True(t, Alertable(domain.Event{Kind: domain.EventSessionDeactivated}))
	assert.True(t, Alertable(domain.Event{Kind: domain.EventCircuitOpen}))
	assert.False(t, Alertable(domain.Event{Kind: domain.EventReconnecting}))
}

func TestFormat(t *testing.T) {
	title, body := Format("dev-7", domain.Event{
		Kind:        domain.EventMaxReconnectAttempts,
		At:          time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
		Attempt:     15,
		MaxAttempts: 15,
	})
	assert.Equal(t, "simlink: reconnect attempts exhausted", title)
	assert.Equal(t, "device: dev-7\nat: 2026-05-06T07:08:09Z\nattempts: 15/15", body)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("bot-token", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", strings.Repeat("x", 5000)))
	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.True(t, strings.HasPrefix(got["text"], "*Title*\n"))
	assert.Len(t, got["text"], telegramMaxText)
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
