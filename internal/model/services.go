package model

import (
	"context"
	"math/big"
)

// TokenResponse is the token exchange result. Only IDToken is consumed.
type TokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenExchanger trades an authorization code for tokens.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (TokenResponse, error)
}

// NonceService computes the OAuth nonce remotely.
type NonceService interface {
	Nonce(ctx context.Context, pubKeyHex, rndHex string) (string, error)
}

// SaltService derives the per-identity salt remotely.
type SaltService interface {
	Salt(ctx context.Context, iss, aud, sub string) (Salt, error)
}

// ZkAddrService derives the identity commitment remotely.
type ZkAddrService interface {
	ZkAddr(ctx context.Context, iss, aud, sub string, salt Salt) (ZkAddress, error)
}

// ProviderKey is an RSA signing key published by the identity provider.
type ProviderKey struct {
	Kid string
	// N is the base64url (unpadded) modulus as published.
	N string
	E string
}

// Modulus returns the decoded RSA modulus.
func (k ProviderKey) Modulus() (*big.Int, error) {
	return decodeB64Int(k.N)
}

// Exponent returns the decoded RSA public exponent.
func (k ProviderKey) Exponent() (int, error) {
	e, err := decodeB64Int(k.E)
	if err != nil {
		return 0, err
	}
	return int(e.Int64()), nil
}

// KeyService fetches the provider's current signing keys.
type KeyService interface {
	Key(ctx context.Context, kid string) (ProviderKey, error)
}

// IdentityProvider is the OAuth provider surface of the recovery flow.
type IdentityProvider interface {
	TokenExchanger
	KeyService
	// AuthorizationURL returns the sign-in URL carrying nonce.
	AuthorizationURL(nonce string) string
}
