package model

import (
	"context"
	"io"
	"math/big"
)

// ProofPayload is a decoded proof blob in the shape the verifier expects.
type ProofPayload struct {
	Proof         [8]*big.Int
	Commitments   [2]*big.Int
	CommitmentPok [2]*big.Int
}

// ProofRequest is the proving service input.
type ProofRequest struct {
	EphPubKeyHex       string `json:"eph_pub_key_hex"`
	IdpPubKeyNBase64   string `json:"idp_pub_key_n_base64"`
	JwtHeaderJSON      string `json:"jwt_header_json"`
	JwtPayloadJSON     string `json:"jwt_payload_json"`
	JwtSignatureBase64 string `json:"jwt_signature_base64"`
	JwtRndHex          string `json:"jwt_rnd_hex"`
	UserSaltHex        string `json:"user_salt_hex"`
}

// ProverService returns a base64url-encoded proof blob.
type ProverService interface {
	Prove(ctx context.Context, req ProofRequest) (string, error)
}

// ProofArchive keeps raw proof blobs so a failed submission can be retried
// without generating a new proof.
type ProofArchive interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
