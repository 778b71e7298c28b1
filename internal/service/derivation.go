package service

import (
	"context"
	"fmt"

	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/metrics"
	"github.com/dtroode/zklogin-recovery/internal/model"
	"github.com/dtroode/zklogin-recovery/internal/nonce"
	"github.com/dtroode/zklogin-recovery/internal/salt"
	"github.com/dtroode/zklogin-recovery/internal/zkaddr"
)

var (
	_ model.NonceService  = (*Derivation)(nil)
	_ model.SaltService   = (*Derivation)(nil)
	_ model.ZkAddrService = (*Derivation)(nil)
)

// Derivation serves the backend derivations. Results are byte-identical to
// the local derivers used by the recovery flow.
type Derivation struct {
	binder   *nonce.Binder
	salts    *salt.Deriver
	zkAddrs  *zkaddr.Deriver
	registry model.IdentityRegistry
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewDerivation creates the service. registry and m may be nil.
func NewDerivation(seed string, registry model.IdentityRegistry, m *metrics.Metrics, logger *logger.Logger) *Derivation {
	return &Derivation{
		binder:   nonce.NewBinder(),
		salts:    salt.NewDeriver(seed),
		zkAddrs:  zkaddr.NewDeriver(),
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

func (s *Derivation) Nonce(ctx context.Context, pubKeyHex, rndHex string) (string, error) {
	n, err := s.binder.Nonce(ctx, pubKeyHex, rndHex)
	s.metrics.ObserveDerivation("nonce", err)
	if err != nil {
		s.logger.Debug("Derivation service: nonce rejected", "error", err)
		return "", fmt.Errorf("failed to bind nonce: %w", err)
	}
	return n, nil
}

func (s *Derivation) Salt(ctx context.Context, iss, aud, sub string) (model.Salt, error) {
	v, err := s.salts.Salt(ctx, iss, aud, sub)
	s.metrics.ObserveDerivation("salt", err)
	if err != nil {
		s.logger.Debug("Derivation service: salt rejected", "iss", iss, "error", err)
		return model.Salt{}, fmt.Errorf("failed to derive salt: %w", err)
	}
	return v, nil
}

// ZkAddr derives the commitment and records the identity in the registry.
// Registry failures are logged and never fail the derivation.
func (s *Derivation) ZkAddr(ctx context.Context, iss, aud, sub string, userSalt model.Salt) (model.ZkAddress, error) {
	zk, err := s.zkAddrs.ZkAddr(ctx, iss, aud, sub, userSalt)
	s.metrics.ObserveDerivation("zk_addr", err)
	if err != nil {
		s.logger.Debug("Derivation service: zk address rejected", "iss", iss, "error", err)
		return model.ZkAddress{}, fmt.Errorf("failed to derive zk address: %w", err)
	}

	s.touch(ctx, iss, aud, sub, zk)

	return zk, nil
}

func (s *Derivation) touch(ctx context.Context, iss, aud, sub string, zk model.ZkAddress) {
	if s.registry == nil {
		return
	}
	rec, err := s.registry.Touch(ctx, model.IdentityRecord{Iss: iss, Aud: aud, Sub: sub, ZkAddr: zk})
	if err != nil {
		s.logger.Error("Derivation service: failed to record identity", "iss", iss, "error", err)
		return
	}
	s.logger.Debug("Derivation service: identity recorded", "id", rec.ID, "requests", rec.RequestCount)
}
