// Package auth manages the trakt OAuth token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrNoCredential = errors.New("no stored credential")

const (
	oobRedirect   = "urn:ietf:wg:oauth:2.0:oob"
	refreshWindow = 60 * time.Second
)

// Token is the document returned by /oauth/token.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (t Token) Expiry() time.Time {
	return time.Unix(t.CreatedAt+t.ExpiresIn, 0)
}

// TokenStore persists the raw token document.
type TokenStore interface {
	LoadToken(ctx context.Context) ([]byte, error)
	SaveToken(ctx context.Context, tokenJSON []byte) error
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Store        TokenStore
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Now          func() time.Time
	// DevicePollInterval overrides the interval the server asks for.
	DevicePollInterval time.Duration
}

// Authenticator hands out access tokens, refreshing them when they are about
// to expire. Safe for concurrent use.
type Authenticator struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger

	mu    sync.Mutex
	token *Token
}

func New(cfg Config) *Authenticator {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{cfg: cfg, client: hc, log: log}
}

// AccessToken returns a token valid for at least another minute.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	// held across the refresh round-trip so concurrent callers wait for one
	// refresh instead of each spending the refresh token
	a.mu.Lock()
	defer a.mu.Unlock()

	tok, err := a.loadLocked(ctx)
	if err != nil {
		return "", err
	}
	if tok.Expiry().Sub(a.cfg.Now()) < refreshWindow {
		a.log.Info("refreshing access token", slog.Time("expiry", tok.Expiry()))
		refreshed, err := a.requestToken(ctx, map[string]string{
			"refresh_token": tok.RefreshToken,
			"grant_type":    "refresh_token",
		})
		if err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
		if err := a.saveLocked(ctx, refreshed); err != nil {
			return "", err
		}
		tok = refreshed
	}
	return tok.AccessToken, nil
}

// HasToken reports whether a token is stored.
func (a *Authenticator) HasToken(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.loadLocked(ctx)
	if errors.Is(err, ErrNoCredential) {
		return false, nil
	}
	return err == nil, err
}

// Exchange trades an authorization code for a token and stores it.
func (a *Authenticator) Exchange(ctx context.Context, code string) error {
	tok, err := a.requestToken(ctx, map[string]string{
		"code":       code,
		"grant_type": "authorization_code",
	})
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveLocked(ctx, tok)
}

func (a *Authenticator) loadLocked(ctx context.Context) (*Token, error) {
	if a.token != nil {
		return a.token, nil
	}
	raw, err := a.cfg.Store.LoadToken(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoCredential
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoCredential
	}
	a.token = &tok
	return a.token, nil
}

func (a *Authenticator) saveLocked(ctx context.Context, tok *Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := a.cfg.Store.SaveToken(ctx, raw); err != nil {
		return err
	}
	a.token = tok
	return nil
}

func (a *Authenticator) requestToken(ctx context.Context, fields map[string]string) (*Token, error) {
	fields["client_id"] = a.cfg.ClientID
	fields["client_secret"] = a.cfg.ClientSecret
	fields["redirect_uri"] = oobRedirect

	var tok Token
	status, err := a.postJSON(ctx, "/oauth/token", fields, &tok)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", status)
	}
	if tok.CreatedAt == 0 {
		tok.CreatedAt = a.cfg.Now().Unix()
	}
	return &tok, nil
}

// postJSON posts body and decodes a 200 response into out.
func (a *Authenticator) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
