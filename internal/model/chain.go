package model

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BatchCall is one sub-call of an atomic wallet executeBatch.
type BatchCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// RecoveryCall names everything recoverAccount needs. JwtHash is
// sha256 over the signed "header.payload" segments.
type RecoveryCall struct {
	Account       common.Address
	Idp           common.Address
	JwtHash       [32]byte
	JwtHeaderJSON string
	JwtSignature  []byte
	NewOwner      common.Address
	Proof         ProofPayload
}

// WalletChain is the wallet factory, wallet and verifier contract surface.
// Write methods block until the transaction is mined and return its hash.
type WalletChain interface {
	WalletAddress(ctx context.Context, initialOwner common.Address) (common.Address, error)
	IsDeployed(ctx context.Context, account common.Address) (bool, error)
	CreateAccount(ctx context.Context, initialOwner common.Address) (common.Hash, error)
	Owners(ctx context.Context, account common.Address) ([]Owner, error)
	RegisteredZkAddr(ctx context.Context, account common.Address) (ZkAddress, error)
	LinkRecovery(ctx context.Context, account common.Address, zkAddr ZkAddress) (common.Hash, error)
	RemoveOwnerAtIndex(ctx context.Context, account common.Address, index uint64, owner Owner) (common.Hash, error)
	RecoverAccount(ctx context.Context, call RecoveryCall) (common.Hash, error)
}
