package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

const maxBodyBytes = 64 << 10

// DerivationService computes nonces, salts and zk addresses.
type DerivationService interface {
	Nonce(ctx context.Context, pubKeyHex, rndHex string) (string, error)
	Salt(ctx context.Context, iss, aud, sub string) (model.Salt, error)
	ZkAddr(ctx context.Context, iss, aud, sub string, salt model.Salt) (model.ZkAddress, error)
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

// Derivation serves the derivation endpoints.
type Derivation struct {
	service DerivationService
	logger  *logger.Logger
}

// NewDerivation creates a new Derivation handler.
func NewDerivation(service DerivationService, logger *logger.Logger) *Derivation {
	return &Derivation{
		service: service,
		logger:  logger,
	}
}

// Nonce handles POST /nonce.
func (h *Derivation) Nonce(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.service.Nonce(r.Context(), req.EphPubKeyHex, req.JwtRndHex)
	if err != nil {
		h.logger.Debug("Derivation handler: nonce failed", "error", err)
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nonceResponse{Nonce: n})
}

// Salt handles POST /salt.
func (h *Derivation) Salt(w http.ResponseWriter, r *http.Request) {
	var req saltRequest
	if !h.decode(w, r, &req) {
		return
	}

	salt, err := h.service.Salt(r.Context(), req.Iss, req.Aud, req.Sub)
	if err != nil {
		h.logger.Debug("Derivation handler: salt failed", "iss", req.Iss, "error", err)
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saltResponse{Salt: salt.Hex()})
}

// ZkAddr handles POST /zk-addr.
func (h *Derivation) ZkAddr(w http.ResponseWriter, r *http.Request) {
	var req zkAddrRequest
	if !h.decode(w, r, &req) {
		return
	}

	salt, err := model.ParseSalt(req.UserSaltHex)
	if err != nil {
		handleError(w, err)
		return
	}

	zk, err := h.service.ZkAddr(r.Context(), req.Iss, req.Aud, req.Sub, salt)
	if err != nil {
		h.logger.Debug("Derivation handler: zk address failed", "iss", req.Iss, "error", err)
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, zkAddrResponse{ZkAddr: zk.Hex()})
}

// Health handles GET /healthz.
func (h *Derivation) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Derivation) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
