// Package nonce binds an ephemeral public key and randomness to the value
// carried in the OAuth nonce claim.
//
// The binding is the circomlib Poseidon hash over the BN254 scalar field of
// the public key split into 31-byte chunks followed by the randomness. The
// nonce is the unpadded base64url encoding of the 32-byte big-endian digest.
package nonce

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/dtroode/zklogin-recovery/internal/keypair"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

const (
	// ElementSize is the chunk width that always fits the scalar field.
	ElementSize     = 31
	MaxPubKeyBytes  = 64
	MaxPubKeyChunks = (MaxPubKeyBytes + ElementSize - 1) / ElementSize
	// Length is the encoded nonce length.
	Length = 43
)

// Binder computes and checks nonce bindings. It also serves as the local
// NonceService.
type Binder struct{}

var _ model.NonceService = (*Binder)(nil)

// NewBinder creates a Binder.
func NewBinder() *Binder {
	return &Binder{}
}

// Bind returns the nonce for pubKey and rnd.
func (b *Binder) Bind(pubKey []byte, rnd fr.Element) (string, error) {
	digest, err := hash(pubKey, rnd)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(digest[:]), nil
}

// Verify reports whether nonce is exactly the binding of pubKey and rnd.
func (b *Binder) Verify(nonce string, pubKey []byte, rnd fr.Element) bool {
	expected, err := b.Bind(pubKey, rnd)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(nonce)) == 1
}

// Nonce computes the binding from hex-encoded inputs.
func (b *Binder) Nonce(_ context.Context, pubKeyHex, rndHex string) (string, error) {
	pubKey, err := model.DecodeHex(pubKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: ephemeral public key: %v", model.ErrValidation, err)
	}
	rnd, err := keypair.ParseRandomness(rndHex)
	if err != nil {
		return "", err
	}
	return b.Bind(pubKey, rnd)
}

// Chunks splits pubKey into big-endian 31-byte field elements, zero-filled
// to MaxPubKeyChunks. A trailing partial chunk holds the remaining bytes.
func Chunks(pubKey []byte) ([MaxPubKeyChunks]fr.Element, error) {
	var chunks [MaxPubKeyChunks]fr.Element
	if len(pubKey) == 0 {
		return chunks, fmt.Errorf("%w: empty ephemeral public key", model.ErrValidation)
	}
	if len(pubKey) > MaxPubKeyBytes {
		return chunks, fmt.Errorf("%w: ephemeral public key is %d bytes (max %d)", model.ErrValidation, len(pubKey), MaxPubKeyBytes)
	}

	for i := 0; i*ElementSize < len(pubKey); i++ {
		end := min((i+1)*ElementSize, len(pubKey))
		chunks[i].SetBigInt(new(big.Int).SetBytes(pubKey[i*ElementSize : end]))
	}
	return chunks, nil
}

func hash(pubKey []byte, rnd fr.Element) ([32]byte, error) {
	var digest [32]byte

	chunks, err := Chunks(pubKey)
	if err != nil {
		return digest, err
	}

	inputs := make([]*big.Int, 0, MaxPubKeyChunks+1)
	for i := range chunks {
		inputs = append(inputs, chunks[i].BigInt(new(big.Int)))
	}
	inputs = append(inputs, rnd.BigInt(new(big.Int)))

	h, err := poseidon.Hash(inputs)
	if err != nil {
		return digest, fmt.Errorf("failed to hash nonce inputs: %w", err)
	}
	h.FillBytes(digest[:])
	return digest, nil
}
