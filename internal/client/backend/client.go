// Package backend is the HTTP client of the derivation backend and the
// proving service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

const (
	// DefaultTimeout bounds derivation requests.
	DefaultTimeout = 15 * time.Second
	// ProveTimeout bounds proof generation, which takes tens of seconds.
	ProveTimeout = 5 * time.Minute

	maxErrorBody = 4 << 10
)

// Client calls one backend base URL. The same type serves the derivation
// backend and the prover; service names the peer in errors and logs.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

var (
	_ model.NonceService  = (*Client)(nil)
	_ model.SaltService   = (*Client)(nil)
	_ model.ZkAddrService = (*Client)(nil)
	_ model.ProverService = (*Client)(nil)
)

// NewClient creates a Client. A nil httpClient uses a client with
// DefaultTimeout.
func NewClient(service, baseURL string, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type nonceRequest struct {
	EphPubKeyHex string `json:"eph_pub_key_hex"`
	JwtRndHex    string `json:"jwt_rnd_hex"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type saltRequest struct {
	Iss string `json:"iss"`
	Aud string `json:"aud"`
	Sub string `json:"sub"`
}

type saltResponse struct {
	Salt string `json:"salt"`
}

type zkAddrRequest struct {
	Iss         string `json:"iss"`
	Aud         string `json:"aud"`
	Sub         string `json:"sub"`
	UserSaltHex string `json:"user_salt_hex"`
}

type zkAddrResponse struct {
	ZkAddr string `json:"zk_addr"`
}

type proofResponse struct {
	Proof string `json:"proof"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Nonce calls POST /nonce.
func (c *Client) Nonce(ctx context.Context, pubKeyHex, rndHex string) (string, error) {
	var resp nonceResponse
	if err := c.post(ctx, "nonce", "/nonce", nonceRequest{EphPubKeyHex: pubKeyHex, JwtRndHex: rndHex}, &resp); err != nil {
		return "", err
	}
	if resp.Nonce == "" {
		return "", c.serviceError("nonce", http.StatusOK, errors.New("empty nonce"))
	}
	return resp.Nonce, nil
}

// Salt calls POST /salt.
func (c *Client) Salt(ctx context.Context, iss, aud, sub string) (model.Salt, error) {
	var resp saltResponse
	if err := c.post(ctx, "salt", "/salt", saltRequest{Iss: iss, Aud: aud, Sub: sub}, &resp); err != nil {
		return model.Salt{}, err
	}
	salt, err := model.ParseSalt(resp.Salt)
	if err != nil {
		return model.Salt{}, c.serviceError("salt", http.StatusOK, err)
	}
	return salt, nil
}

// ZkAddr calls POST /zk-addr.
func (c *Client) ZkAddr(ctx context.Context, iss, aud, sub string, salt model.Salt) (model.ZkAddress, error) {
	var resp zkAddrResponse
	req := zkAddrRequest{Iss: iss, Aud: aud, Sub: sub, UserSaltHex: salt.Hex()}
	if err := c.post(ctx, "zk-addr", "/zk-addr", req, &resp); err != nil {
		return model.ZkAddress{}, err
	}
	zk, err := model.ParseZkAddress(resp.ZkAddr)
	if err != nil {
		return model.ZkAddress{}, c.serviceError("zk-addr", http.StatusOK, err)
	}
	return zk, nil
}

// Prove calls POST /proof and returns the base64url proof blob.
func (c *Client) Prove(ctx context.Context, req model.ProofRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ProveTimeout)
	defer cancel()

	var resp proofResponse
	if err := c.post(ctx, "proof", "/proof", req, &resp); err != nil {
		return "", err
	}
	if resp.Proof == "" {
		return "", c.serviceError("proof", http.StatusOK, errors.New("empty proof"))
	}
	return resp.Proof, nil
}

func (c *Client) post(ctx context.Context, step, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", step, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", step, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("BackendClient: request", "service", c.service, "step", step)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("BackendClient: request failed", "service", c.service, "step", step, "error", err)
		return c.serviceError(step, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := readError(resp.Body)
		c.logger.Error("BackendClient: unexpected status", "service", c.service, "step", step, "status", resp.StatusCode, "error", err)
		return c.serviceError(step, resp.StatusCode, err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.serviceError(step, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}

	c.logger.Debug("BackendClient: response", "service", c.service, "step", step, "duration", time.Since(start))

	return nil
}

func (c *Client) serviceError(step string, status int, err error) error {
	return &model.ServiceError{Service: c.service, Step: step, StatusCode: status, Err: err}
}

func readError(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return fmt.Errorf("failed to read error body: %w", err)
	}

	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return errors.New(e.Error)
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "empty response body"
	}
	return errors.New(msg)
}
