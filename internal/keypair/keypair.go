// Package keypair generates ephemeral sign-in keypairs.
package keypair

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

// Generate creates a fresh secp256k1 keypair and a BN254 scalar randomness.
func Generate() (model.EphemeralKeypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return model.EphemeralKeypair{}, fmt.Errorf("failed to generate private key: %w", err)
	}

	var rnd fr.Element
	if _, err := rnd.SetRandom(); err != nil {
		return model.EphemeralKeypair{}, fmt.Errorf("failed to generate randomness: %w", err)
	}

	return FromParts(key, rnd), nil
}

// FromParts assembles a keypair from an existing key and randomness.
func FromParts(key *ecdsa.PrivateKey, rnd fr.Element) model.EphemeralKeypair {
	return model.EphemeralKeypair{
		PrivateKey: key,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		Randomness: rnd,
		CreatedAt:  time.Now().UTC(),
	}
}

// ParseRandomness decodes a 0x-prefixed big-endian randomness. Values not
// strictly below the scalar field modulus are rejected.
func ParseRandomness(s string) (fr.Element, error) {
	var rnd fr.Element
	b, err := model.DecodeHex(s)
	if err != nil {
		return rnd, fmt.Errorf("%w: randomness: %v", model.ErrValidation, err)
	}
	if len(b) > fr.Bytes {
		return rnd, fmt.Errorf("%w: randomness is %d bytes (max %d)", model.ErrValidation, len(b), fr.Bytes)
	}
	padded := make([]byte, fr.Bytes)
	copy(padded[fr.Bytes-len(b):], b)
	if err := rnd.SetBytesCanonical(padded); err != nil {
		return rnd, fmt.Errorf("%w: randomness is not a field element: %v", model.ErrValidation, err)
	}
	return rnd, nil
}
