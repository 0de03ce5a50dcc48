package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/simlink/internal/crypto"
	"github.com/alanyoungcy/simlink/internal/domain"
)

// TokenSource yields the current access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Refresher exchanges the current credentials for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, typically from config or the environment.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// FileToken reads a token encrypted with crypto.EncryptToken.
type FileToken struct {
	Path     string
	Password string
}

// Token decrypts the file on every call.
func (f FileToken) Token(context.Context) (string, error) {
	tok, err := crypto.LoadToken(crypto.TokenConfig{EncryptedTokenPath: f.Path, Password: f.Password})
	if err != nil {
		return "", fmt.Errorf("session: file token: %w", err)
	}
	return tok, nil
}

// HTTPRefresher calls the auth service's refresh endpoint. The request is
// signed with the configured RequestSigner when one is set.
type HTTPRefresher struct {
	URL          string
	RefreshToken string
	Signer       *crypto.RequestSigner
	Client       *http.Client
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Refresh posts the refresh token and returns the new access token. A 401 or
// 403 answer is domain.ErrUnauthorized.
func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: r.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("session: refresh: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("session: refresh: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Signer != nil {
		path := "/"
		if u, err := url.Parse(r.URL); err == nil && u.Path != "" {
			path = u.Path
		}
		for k, v := range r.Signer.Headers(http.MethodPost, path, string(body)) {
			req.Header.Set(k, v)
		}
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("session: refresh: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("session: refresh: status %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("session: refresh: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("session: refresh: decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("session: refresh: empty token: %w", domain.ErrUnauthorized)
	}
	return out.AccessToken, nil
}
