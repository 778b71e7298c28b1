package model

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
)

// EphemeralKeypair is a per sign-in keypair whose address becomes a wallet
// owner candidate once recovery succeeds.
type EphemeralKeypair struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	Randomness fr.Element
	CreatedAt  time.Time
}

// PublicKey returns the bytes bound into the OAuth nonce.
func (k EphemeralKeypair) PublicKey() []byte {
	return k.Address.Bytes()
}

// RandomnessHex returns the 0x-prefixed 32-byte big-endian randomness.
func (k EphemeralKeypair) RandomnessHex() string {
	b := k.Randomness.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// KeypairStore is an append-only log of ephemeral keypairs in insertion
// order. The last entry is the current keypair.
type KeypairStore interface {
	Append(ctx context.Context, kp EphemeralKeypair) error
	Latest(ctx context.Context) (EphemeralKeypair, error)
	All(ctx context.Context) ([]EphemeralKeypair, error)
	Clear(ctx context.Context) error
}

// TokenStore caches the raw id token of the authenticated session.
type TokenStore interface {
	SaveToken(ctx context.Context, raw string) error
	LoadToken(ctx context.Context) (string, error)
	ClearToken(ctx context.Context) error
}

// SessionStore is the local persistence of the recovery flow.
type SessionStore interface {
	KeypairStore
	TokenStore
}
