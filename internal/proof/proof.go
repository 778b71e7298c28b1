// Package proof decodes the binary groth16 proof blob returned by the
// proving service into the shape the verifier contract accepts.
//
// Layout (big-endian):
//
//	[0, 256)           8 field elements: Ar.X, Ar.Y, Bs (4 words), Krs.X, Krs.Y
//	[256, 260)         uint32 commitment count N
//	[260, 260+64N)     N commitment points (X, Y)
//	[260+64N, +64)     commitment proof of knowledge (X, Y)
package proof

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

const (
	// ElementSize is the width of one encoded field element.
	ElementSize = 32
	// ProofElements is the number of elements before the commitment count.
	ProofElements = 8
	// HeaderSize covers the proof elements and the commitment count.
	HeaderSize = ProofElements*ElementSize + 4
	// PointSize is one uncompressed G1 point.
	PointSize = 2 * ElementSize
	// CommitmentCount is the only supported number of commitments.
	CommitmentCount = 1
	// Size is the length of a blob carrying CommitmentCount commitments.
	Size = HeaderSize + CommitmentCount*PointSize + PointSize
)

var modulus = fp.Modulus()

// ExpectedSize returns the blob length for n commitments.
func ExpectedSize(n uint32) int {
	return HeaderSize + int(n)*PointSize + PointSize
}

// DecodeString decodes an unpadded base64url blob.
func DecodeString(s string) (model.ProofPayload, error) {
	blob, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return model.ProofPayload{}, fmt.Errorf("%w: invalid base64url: %v", model.ErrMalformedProof, err)
	}
	return Decode(blob)
}

// Decode parses a raw proof blob.
func Decode(blob []byte) (model.ProofPayload, error) {
	var payload model.ProofPayload

	if len(blob) < HeaderSize {
		return payload, fmt.Errorf("%w: blob is %d bytes, header needs %d", model.ErrMalformedProof, len(blob), HeaderSize)
	}

	n := binary.BigEndian.Uint32(blob[ProofElements*ElementSize : HeaderSize])
	if n != CommitmentCount {
		return payload, fmt.Errorf("%w: got %d", model.ErrUnsupportedCommitmentCount, n)
	}
	if len(blob) != ExpectedSize(n) {
		return payload, fmt.Errorf("%w: blob is %d bytes, want %d", model.ErrMalformedProof, len(blob), ExpectedSize(n))
	}

	var err error
	for i := range payload.Proof {
		if payload.Proof[i], err = element(blob, i*ElementSize); err != nil {
			return model.ProofPayload{}, err
		}
	}

	offset := HeaderSize
	for i := range payload.Commitments {
		if payload.Commitments[i], err = element(blob, offset+i*ElementSize); err != nil {
			return model.ProofPayload{}, err
		}
	}

	offset += int(n) * PointSize
	for i := range payload.CommitmentPok {
		if payload.CommitmentPok[i], err = element(blob, offset+i*ElementSize); err != nil {
			return model.ProofPayload{}, err
		}
	}

	return payload, nil
}

// Encode writes payload in the blob layout. Nil elements encode as zero.
// Elements must fit in ElementSize bytes.
func Encode(payload model.ProofPayload) []byte {
	blob := make([]byte, Size)

	for i, v := range payload.Proof {
		put(blob[i*ElementSize:], v)
	}
	binary.BigEndian.PutUint32(blob[ProofElements*ElementSize:], CommitmentCount)

	offset := HeaderSize
	for i, v := range payload.Commitments {
		put(blob[offset+i*ElementSize:], v)
	}
	offset += PointSize
	for i, v := range payload.CommitmentPok {
		put(blob[offset+i*ElementSize:], v)
	}

	return blob
}

// EncodeToString is Encode followed by unpadded base64url.
func EncodeToString(payload model.ProofPayload) string {
	return base64.RawURLEncoding.EncodeToString(Encode(payload))
}

func element(blob []byte, offset int) (*big.Int, error) {
	v := new(big.Int).SetBytes(blob[offset : offset+ElementSize])
	if v.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%w: element at offset %d is not in the base field", model.ErrMalformedProof, offset)
	}
	return v, nil
}

func put(dst []byte, v *big.Int) {
	if v == nil {
		return
	}
	v.FillBytes(dst[:ElementSize])
}
