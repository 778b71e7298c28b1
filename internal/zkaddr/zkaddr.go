// Package zkaddr derives the identity commitment (zkAddr) bound on-chain.
package zkaddr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

// Deriver computes zkAddrs. It also serves as the local ZkAddrService.
type Deriver struct{}

var _ model.ZkAddrService = (*Deriver)(nil)

// NewDeriver creates a Deriver.
func NewDeriver() *Deriver {
	return &Deriver{}
}

// ZkAddr implements model.ZkAddrService.
func (d *Deriver) ZkAddr(_ context.Context, iss, aud, sub string, salt model.Salt) (model.ZkAddress, error) {
	return Derive(iss, aud, sub, salt)
}

// Derive returns sha256(pad(iss) || pad(aud) || pad(sub) || salt), where
// pad right-pads the JSON string encoding of a claim with zeros to the
// claim's circuit buffer size.
func Derive(iss, aud, sub string, salt model.Salt) (model.ZkAddress, error) {
	var zkAddr model.ZkAddress

	buf := make([]byte, 0, model.MaxIssLen+model.MaxAudLen+model.MaxSubLen+model.SaltSize)
	for _, c := range claims(iss, aud, sub) {
		padded, err := PadClaim(c.name, c.value, c.max)
		if err != nil {
			return zkAddr, err
		}
		buf = append(buf, padded...)
	}
	buf = append(buf, salt[:]...)

	return sha256.Sum256(buf), nil
}

// Validate reports whether every claim is present and fits its buffer once
// JSON-encoded.
func Validate(iss, aud, sub string) error {
	for _, c := range claims(iss, aud, sub) {
		if _, err := PadClaim(c.name, c.value, c.max); err != nil {
			return err
		}
	}
	return nil
}

type claim struct {
	name  string
	value string
	max   int
}

func claims(iss, aud, sub string) []claim {
	return []claim{
		{"iss", iss, model.MaxIssLen},
		{"aud", aud, model.MaxAudLen},
		{"sub", sub, model.MaxSubLen},
	}
}

// PadClaim JSON-encodes value and right-pads it with zeros to size bytes.
func PadClaim(name, value string, size int) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: %s", model.ErrMissingClaim, name)
	}

	encoded, err := EncodeClaim(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if len(encoded) > size {
		return nil, fmt.Errorf("%w: encoded %s is %d bytes (max %d)", model.ErrClaimTooLong, name, len(encoded), size)
	}

	padded := make([]byte, size)
	copy(padded, encoded)
	return padded, nil
}

// EncodeClaim returns the JSON string encoding of value as a browser's
// JSON.stringify would produce it: no HTML escaping, no trailing newline.
func EncodeClaim(value string) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(b.Bytes(), []byte("\n")), nil
}
