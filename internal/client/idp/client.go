// Package idp talks to an OpenID Connect provider: authorization URL,
// authorization code exchange and JWKS lookup.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

const (
	service      = "idp"
	maxErrorBody = 4 << 10
	// keysTTL bounds how long a fetched key set is reused.
	keysTTL = 10 * time.Minute
)

// Config describes the provider endpoints and the registered client.
type Config struct {
	AuthURL      string
	TokenURL     string
	JWKSURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
}

// Client implements model.IdentityProvider.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	keys      map[string]model.ProviderKey
	fetchedAt time.Time
}

var _ model.IdentityProvider = (*Client)(nil)

// NewClient creates a Client. A nil httpClient uses a 15s timeout client.
func NewClient(cfg Config, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Scope == "" {
		cfg.Scope = "openid"
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		now:    time.Now,
	}
}

// AuthorizationURL returns the authorization code flow URL carrying nonce.
func (c *Client) AuthorizationURL(nonce string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", c.cfg.Scope)
	q.Set("nonce", nonce)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")

	sep := "?"
	if strings.Contains(c.cfg.AuthURL, "?") {
		sep = "&"
	}
	return c.cfg.AuthURL + sep + q.Encode()
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (model.TokenResponse, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokens model.TokenResponse
	if err := c.do(req, "exchange", &tokens); err != nil {
		return model.TokenResponse{}, err
	}
	if tokens.IDToken == "" {
		return model.TokenResponse{}, &model.ServiceError{Service: service, Step: "exchange", StatusCode: http.StatusOK, Err: fmt.Errorf("response has no id_token")}
	}

	c.logger.Info("IdpClient: code exchanged")

	return tokens, nil
}

type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// Key returns the signing key with the given id. A cached key set is
// refetched once when kid is unknown, so rotated keys are picked up.
func (c *Client) Key(ctx context.Context, kid string) (model.ProviderKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := c.keys != nil && c.now().Sub(c.fetchedAt) < keysTTL
	if fresh {
		if k, ok := c.keys[kid]; ok {
			return k, nil
		}
	}

	if err := c.fetchKeys(ctx); err != nil {
		return model.ProviderKey{}, err
	}

	k, ok := c.keys[kid]
	if !ok {
		return model.ProviderKey{}, &model.ServiceError{Service: service, Step: "jwks", StatusCode: http.StatusNotFound, Err: fmt.Errorf("%w: signing key %q", model.ErrNotFound, kid)}
	}
	return k, nil
}

func (c *Client) fetchKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build jwks request: %w", err)
	}

	var set jwks
	if err := c.do(req, "jwks", &set); err != nil {
		return err
	}

	keys := make(map[string]model.ProviderKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "" && k.Kty != "RSA" {
			continue
		}
		keys[k.Kid] = model.ProviderKey{Kid: k.Kid, N: k.N, E: k.E}
	}
	c.keys = keys
	c.fetchedAt = c.now()

	c.logger.Debug("IdpClient: keys fetched", "count", len(keys))

	return nil
}

func (c *Client) do(req *http.Request, step string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("IdpClient: request failed", "step", step, "error", err)
		return &model.ServiceError{Service: service, Step: step, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("IdpClient: unexpected status", "step", step, "status", resp.StatusCode)
		return &model.ServiceError{Service: service, Step: step, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.ServiceError{Service: service, Step: step, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
