package model

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Claims are the typed id token payload claims.
type Claims struct {
	Iss   string
	Aud   string
	Sub   string
	Nonce string
	// Extra holds every claim not listed above.
	Extra map[string]any
}

// OAuthIdentity is a parsed provider-issued id token.
type OAuthIdentity struct {
	Header      map[string]any
	Kid         string
	Payload     Claims
	Signature   []byte
	Raw         string
	HeaderJSON  string
	PayloadJSON string
}

// SaltSize is the salt length: a 32-byte digest with its high byte dropped.
const SaltSize = 31

// Salt is a field-safe per-identity value.
type Salt [SaltSize]byte

func (s Salt) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ZkAddress is the identity commitment registered on-chain.
type ZkAddress [32]byte

func (z ZkAddress) Hex() string {
	return "0x" + hex.EncodeToString(z[:])
}

// IsZero reports whether no commitment is set.
func (z ZkAddress) IsZero() bool {
	return z == ZkAddress{}
}

// IdentityRecord is a registry entry for an identity that requested
// derivations from the backend. It is a cache, never the source of truth.
type IdentityRecord struct {
	ID           uuid.UUID
	Iss          string
	Aud          string
	Sub          string
	ZkAddr       ZkAddress
	RequestCount int64
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}

// IdentityRegistry persists identity records.
type IdentityRegistry interface {
	Touch(ctx context.Context, record IdentityRecord) (IdentityRecord, error)
	GetByZkAddr(ctx context.Context, zkAddr ZkAddress) (IdentityRecord, error)
}

// Claim buffer capacities of the proof circuit, in bytes of the
// JSON-encoded claim value (quotes included).
const (
	MaxIssLen = 128
	MaxAudLen = 128
	MaxSubLen = 128
	MaxKidLen = 128
)
