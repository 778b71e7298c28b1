// Package salt derives the per-identity salt.
//
// The salt is keccak256(seed ":" iss ":" aud ":" sub) with the most
// significant digest byte dropped, so it always fits the proof field.
// Changing any part of this derivation orphans every registered zkAddr.
package salt

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

// DefaultSeed is the development seed.
const DefaultSeed = "secret-seed"

const separator = ":"

// Deriver derives salts with a fixed seed. It also serves as the local
// SaltService.
type Deriver struct {
	seed string
}

var _ model.SaltService = (*Deriver)(nil)

// NewDeriver creates a Deriver bound to seed.
func NewDeriver(seed string) *Deriver {
	return &Deriver{seed: seed}
}

// Derive returns the salt for the identity.
func (d *Deriver) Derive(iss, aud, sub string) (model.Salt, error) {
	return Derive(d.seed, iss, aud, sub)
}

// Salt implements model.SaltService.
func (d *Deriver) Salt(_ context.Context, iss, aud, sub string) (model.Salt, error) {
	return d.Derive(iss, aud, sub)
}

// Derive returns the salt for (iss, aud, sub) under seed.
func Derive(seed, iss, aud, sub string) (model.Salt, error) {
	var salt model.Salt

	if err := validate(iss, aud, sub); err != nil {
		return salt, err
	}

	digest := crypto.Keccak256([]byte(seed + separator + iss + separator + aud + separator + sub))
	copy(salt[:], digest[1:])

	return salt, nil
}

func validate(iss, aud, sub string) error {
	claims := []struct {
		name  string
		value string
		max   int
	}{
		{"iss", iss, model.MaxIssLen},
		{"aud", aud, model.MaxAudLen},
		{"sub", sub, model.MaxSubLen},
	}
	for _, c := range claims {
		if c.value == "" {
			return fmt.Errorf("%w: %s", model.ErrMissingClaim, c.name)
		}
		if len(c.value) > c.max {
			return fmt.Errorf("%w: %s is %d bytes (max %d)", model.ErrClaimTooLong, c.name, len(c.value), c.max)
		}
	}
	return nil
}
