// Package directory provides a read-only, cached view of the tenant's user
// records from Microsoft Graph.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable signals that the directory provider cannot be reached or
// is not configured. Callers fall back to the placeholder dataset.
var ErrUnavailable = errors.New("directory provider unavailable")

// Record is one user row from the tenant directory. Never mutated here.
type Record struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"mail"`
	Principal   string `json:"userPrincipalName"`
	Enabled     bool   `json:"accountEnabled"`
}

// ClientConfig holds the Graph application credentials.
type ClientConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// BaseURL defaults to the public Graph v1.0 endpoint. Tests point it at
	// a stub server.
	BaseURL string
	// TokenURL defaults to the tenant's v2.0 token endpoint.
	TokenURL string
	Scope    string
}

// Client calls Microsoft Graph with an app-only (client credentials) token.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient constructs a Graph client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://login.microsoftonline.com/" + cfg.TenantID + "/oauth2/v2.0/token"
	}
	if cfg.Scope == "" {
		cfg.Scope = "https://graph.microsoft.com/.default"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether the credentials needed for app-only Graph
// calls are present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.TenantID != "" && c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// ListUsers fetches up to top user records. Failures are reported as
// ErrUnavailable so callers can substitute the placeholder dataset.
func (c *Client) ListUsers(ctx context.Context, top int) ([]Record, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: graph credentials missing", ErrUnavailable)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("$top", strconv.Itoa(top))
	query.Set("$select", "id,displayName,mail,userPrincipalName,accountEnabled")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/users?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("%w: users query returned %d: %s", ErrUnavailable, res.StatusCode, string(body))
	}

	var payload struct {
		Value []Record `json:"value"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode users: %v", ErrUnavailable, err)
	}
	return payload.Value, nil
}

// token returns a cached app-only access token, requesting a fresh one when
// within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", c.cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("%w: token endpoint returned %d: %s", ErrUnavailable, res.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", ErrUnavailable, err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnavailable)
	}

	c.accessToken = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.accessToken, nil
}
