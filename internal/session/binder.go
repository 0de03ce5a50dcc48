// Package session supplies the credentials a simulator connection is opened
// with and tracks which server session and pod the link is bound to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// Binder is the single source of connection credentials. It persists the
// device id through a DeviceStore, caches the access token, and records pod
// moves of the bound session.
type Binder struct {
	devices   domain.DeviceStore
	tokens    TokenSource
	refresher Refresher
	csrfToken string
	logger    *slog.Logger

	mu      sync.RWMutex
	binding domain.SessionBinding
	token   string
}

// Config holds the optional parts of a Binder.
type Config struct {
	// Refresher is used for the single refresh allowed per auth fault. Nil
	// means auth faults always log out.
	Refresher Refresher
	CSRFToken string
	// SessionID resumes a known server session on the first connect.
	SessionID string
}

// NewBinder creates a binder. tokens must not be nil.
func NewBinder(devices domain.DeviceStore, tokens TokenSource, cfg Config, logger *slog.Logger) *Binder {
	return &Binder{
		devices:   devices,
		tokens:    tokens,
		refresher: cfg.Refresher,
		csrfToken: cfg.CSRFToken,
		logger:    logger.With(slog.String("component", "session")),
		binding:   domain.SessionBinding{SessionID: cfg.SessionID},
	}
}

// Init loads the device id, generating and saving one when none is stored.
func (b *Binder) Init(ctx context.Context) error {
	id, err := b.devices.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		id = NewDeviceID()
		if err := b.devices.Save(ctx, id); err != nil {
			return fmt.Errorf("session: init: %w", err)
		}
		b.logger.Info("generated device id", slog.String("device_id", id))
	case err != nil:
		return fmt.Errorf("session: init: %w", err)
	}

	b.mu.Lock()
	b.binding.DeviceID = id
	b.mu.Unlock()
	return nil
}

// Credentials returns the parameters for the next connect. The token is
// fetched from the source once and cached until a refresh replaces it.
func (b *Binder) Credentials(ctx context.Context) (domain.Credentials, error) {
	b.mu.RLock()
	creds := domain.Credentials{
		SessionID:   b.binding.SessionID,
		DeviceID:    b.binding.DeviceID,
		CSRFToken:   b.csrfToken,
		AccessToken: b.token,
	}
	b.mu.RUnlock()

	if creds.DeviceID == "" {
		if err := b.Init(ctx); err != nil {
			return domain.Credentials{}, err
		}
		creds.DeviceID = b.DeviceID()
	}
	if creds.AccessToken == "" {
		tok, err := b.tokens.Token(ctx)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("session: token: %w", err)
		}
		b.mu.Lock()
		b.token = tok
		b.mu.Unlock()
		creds.AccessToken = tok
	}
	return creds, nil
}

// DeviceID returns the current device id.
func (b *Binder) DeviceID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.binding.DeviceID
}

// Binding returns the current session binding.
func (b *Binder) Binding() domain.SessionBinding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.binding
}

// Bind records the serving session and pod. A pod change under the same
// session id is a transfer; a new session id is a fresh binding.
func (b *Binder) Bind(sessionID, podName string) (domain.SessionBinding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.binding
	transferred := sessionID != "" &&
		prev.SessionID == sessionID &&
		prev.PodName != "" &&
		podName != "" &&
		prev.PodName != podName
	b.binding.SessionID = sessionID
	if podName != "" {
		b.binding.PodName = podName
	}
	return prev, transferred
}

// Invalidate forgets the session and the device id. The next process start
// generates a new device id.
func (b *Binder) Invalidate(ctx context.Context) error {
	b.mu.Lock()
	b.binding = domain.SessionBinding{}
	b.token = ""
	b.mu.Unlock()

	if err := b.devices.Clear(ctx); err != nil {
		return fmt.Errorf("session: invalidate: %w", err)
	}
	b.logger.Warn("device id cleared")
	return nil
}

// RefreshToken performs one refresh through the configured refresher.
func (b *Binder) RefreshToken(ctx context.Context) error {
	if b.refresher == nil {
		return fmt.Errorf("session: no refresher configured: %w", domain.ErrUnauthorized)
	}
	tok, err := b.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.token = tok
	b.mu.Unlock()
	b.logger.Info("access token refreshed")
	return nil
}
