package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

const (
	DefaultBaseURL = "https://api.trakt.tv"
	apiVersion     = "2"
)

// TokenSource supplies bearer tokens for authenticated calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Config holds the API client settings.
type Config struct {
	BaseURL    string
	ClientID   string
	AppVersion string
	Tokens     TokenSource
	HTTPClient *http.Client
}

// Client talks to the scrobble and search endpoints.
type Client struct {
	baseURL    string
	clientID   string
	appVersion string
	tokens     TokenSource
	client     *http.Client
}

type IDs struct {
	Trakt int64 `json:"trakt"`
}

type Media struct {
	IDs IDs `json:"ids"`
}

type Episode struct {
	Season int `json:"season"`
	Number int `json:"number"`
}

// ScrobbleRequest is the body of /scrobble/{start,pause,stop}. Exactly one of
// Movie or Show is set; Episode accompanies Show.
type ScrobbleRequest struct {
	Movie      *Media   `json:"movie,omitempty"`
	Show       *Media   `json:"show,omitempty"`
	Episode    *Episode `json:"episode,omitempty"`
	Progress   float64  `json:"progress"`
	AppVersion string   `json:"app_version"`
}

type searchResult struct {
	Type  string `json:"type"`
	Movie *Media `json:"movie"`
	Show  *Media `json:"show"`
}

// New creates a client. An empty BaseURL uses the public API.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		clientID:   cfg.ClientID,
		appVersion: cfg.AppVersion,
		tokens:     cfg.Tokens,
		client:     hc,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Scrobble posts req to /scrobble/<action> and returns the HTTP status. A
// non-2xx status is also returned as an error.
func (c *Client) Scrobble(ctx context.Context, action string, req ScrobbleRequest) (int, error) {
	if req.AppVersion == "" {
		req.AppVersion = c.appVersion
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrobble/"+action, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return 0, fmt.Errorf("access token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, checkStatus(resp, "scrobble "+action)
}

// SearchID returns the trakt id of the first title search hit. kind is
// "movie" or "show". found is false when the search returned nothing.
func (c *Client) SearchID(ctx context.Context, kind, title string) (id int64, found bool, err error) {
	q := url.Values{}
	q.Set("field", "title")
	q.Set("query", title)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/"+kind+"?"+q.Encode(), nil)
	if err != nil {
		return 0, false, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "search "+kind); err != nil {
		return 0, false, err
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, false, fmt.Errorf("decode search: %w", err)
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	media := results[0].Movie
	if kind == "show" {
		media = results[0].Show
	}
	if media == nil {
		return 0, false, nil
	}
	return media.IDs.Trakt, true, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)
}

func checkStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("trakt %s: %s", op, resp.Status)
	}
	return nil
}
