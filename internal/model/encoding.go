package model

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// DecodeHex decodes an optionally 0x-prefixed hex string. An odd number of
// digits is accepted and left-padded with a zero nibble.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func decodeB64Int(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64url integer: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty base64url integer")
	}
	return new(big.Int).SetBytes(b), nil
}

// ParseSalt decodes a hex salt. Shorter values are left-padded with zeros.
func ParseSalt(s string) (Salt, error) {
	var salt Salt
	if err := decodeFixed(s, salt[:]); err != nil {
		return salt, fmt.Errorf("%w: salt: %v", ErrValidation, err)
	}
	return salt, nil
}

// ParseZkAddress decodes a hex zkAddr. Shorter values are left-padded
// with zeros.
func ParseZkAddress(s string) (ZkAddress, error) {
	var zk ZkAddress
	if err := decodeFixed(s, zk[:]); err != nil {
		return zk, fmt.Errorf("%w: zk address: %v", ErrValidation, err)
	}
	return zk, nil
}

func decodeFixed(s string, dst []byte) error {
	b, err := DecodeHex(s)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return fmt.Errorf("empty value")
	}
	if len(b) > len(dst) {
		return fmt.Errorf("value is %d bytes (max %d)", len(b), len(dst))
	}
	copy(dst[len(dst)-len(b):], b)
	return nil
}
