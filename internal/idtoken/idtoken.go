// Package idtoken parses and verifies provider-issued OpenID id tokens.
package idtoken

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

var parser = jwt.NewParser()

// Parse splits and decodes raw without verifying the signature. It requires
// the iss, aud, sub and nonce claims; aud must be a single string.
func Parse(raw string) (model.OAuthIdentity, error) {
	var id model.OAuthIdentity

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return id, fmt.Errorf("%w: expected 3 segments, got %d", model.ErrMalformedToken, len(parts))
	}

	claims := jwt.MapClaims{}
	token, _, err := parser.ParseUnverified(raw, claims)
	if err != nil {
		return id, fmt.Errorf("%w: %v", model.ErrMalformedToken, err)
	}

	headerJSON, err := parser.DecodeSegment(parts[0])
	if err != nil {
		return id, fmt.Errorf("%w: header: %v", model.ErrMalformedToken, err)
	}
	payloadJSON, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return id, fmt.Errorf("%w: payload: %v", model.ErrMalformedToken, err)
	}
	signature, err := parser.DecodeSegment(parts[2])
	if err != nil {
		return id, fmt.Errorf("%w: signature: %v", model.ErrMalformedToken, err)
	}

	payload, err := toClaims(claims)
	if err != nil {
		return id, err
	}

	if v, ok := token.Header["kid"]; ok {
		kid, ok := v.(string)
		if !ok {
			return id, fmt.Errorf("%w: kid is not a string", model.ErrMalformedToken)
		}
		if len(kid) > model.MaxKidLen {
			return id, fmt.Errorf("%w: kid is %d bytes (max %d)", model.ErrMalformedToken, len(kid), model.MaxKidLen)
		}
		id.Kid = kid
	}

	id.Header = token.Header
	id.Payload = payload
	id.Signature = signature
	id.Raw = raw
	id.HeaderJSON = string(headerJSON)
	id.PayloadJSON = string(payloadJSON)

	return id, nil
}

func toClaims(m jwt.MapClaims) (model.Claims, error) {
	var c model.Claims

	required := []struct {
		name string
		dst  *string
	}{
		{"iss", &c.Iss},
		{"aud", &c.Aud},
		{"sub", &c.Sub},
		{"nonce", &c.Nonce},
	}
	for _, r := range required {
		v, ok := m[r.name]
		if !ok {
			return c, fmt.Errorf("%w: missing %s", model.ErrMalformedToken, r.name)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return c, fmt.Errorf("%w: %s must be a non-empty string", model.ErrMalformedToken, r.name)
		}
		*r.dst = s
	}

	c.Extra = make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "iss", "aud", "sub", "nonce":
			continue
		}
		c.Extra[k] = v
	}

	return c, nil
}

// Verify checks the RS256 signature of id against key. Time-based claims
// are not validated: an expired token still proves the binding.
func Verify(id model.OAuthIdentity, key model.ProviderKey) error {
	if id.Kid != "" && key.Kid != "" && id.Kid != key.Kid {
		return fmt.Errorf("%w: key id %q does not match token key id %q", model.ErrTokenSignature, key.Kid, id.Kid)
	}

	pub, err := PublicKey(key)
	if err != nil {
		return err
	}

	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err = p.Parse(id.Raw, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrTokenSignature, err)
	}

	return nil
}

// PublicKey builds an RSA public key from a JWKS entry.
func PublicKey(key model.ProviderKey) (*rsa.PublicKey, error) {
	n, err := key.Modulus()
	if err != nil {
		return nil, fmt.Errorf("failed to decode key modulus: %w", err)
	}
	e, err := key.Exponent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode key exponent: %w", err)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
