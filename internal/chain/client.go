// Package chain is the wallet factory, wallet and zkLogin verifier adapter
// over an Ethereum JSON-RPC endpoint.
package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

// Internal adapter interface, satisfied by *ethclient.Client, so tests can
// run against a fake node.
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ ethBackend = (*ethclient.Client)(nil)

// Contracts are the deployed addresses of one network.
type Contracts struct {
	Factory  common.Address
	Verifier common.Address
	Idp      common.Address
}

// DefaultPollInterval is the receipt polling period.
const DefaultPollInterval = time.Second

// gasMarginPercent is added on top of the node's gas estimate.
const gasMarginPercent = 20

var _ model.WalletChain = (*Client)(nil)

// Client implements model.WalletChain. Transactions are signed with the
// wallet owner key and sent as EIP-1559 transactions.
type Client struct {
	backend      ethBackend
	key          *ecdsa.PrivateKey
	from         common.Address
	contracts    Contracts
	pollInterval time.Duration
	logger       *logger.Logger

	// serializes nonce selection
	sendMu  sync.Mutex
	chainMu sync.Mutex
	chainID *big.Int
}

// Dial connects to rawURL.
func Dial(ctx context.Context, rawURL string, key *ecdsa.PrivateKey, contracts Contracts, logger *logger.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial eth rpc: %w", err)
	}
	return NewClientWithBackend(ec, key, contracts, logger), nil
}

// NewClientWithBackend allows injecting a fake node (used in tests).
func NewClientWithBackend(backend ethBackend, key *ecdsa.PrivateKey, contracts Contracts, logger *logger.Logger) *Client {
	return &Client{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		contracts:    contracts,
		pollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

// SetPollInterval changes the receipt polling period. Non-positive values
// are ignored.
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// From returns the transaction sender, which is also the wallet's initial
// owner.
func (c *Client) From() common.Address {
	return c.from
}

// Contracts returns the configured addresses.
func (c *Client) Contracts() Contracts {
	return c.contracts
}

// OwnerBytes is the ABI encoding of an address owner.
func OwnerBytes(owner common.Address) []byte {
	return common.LeftPadBytes(owner.Bytes(), 32)
}

// DecodeOwner parses owner slot bytes. Cleared slots are empty, address
// owners are 32 bytes and public key owners are 64.
func DecodeOwner(raw []byte) (model.Owner, error) {
	switch len(raw) {
	case 0:
		return model.Owner{}, nil
	case 32:
		return model.AddressOwner(common.BytesToAddress(raw[12:])), nil
	case 64:
		return model.Owner{PublicKey: bytes.Clone(raw)}, nil
	default:
		return model.Owner{}, fmt.Errorf("unexpected owner length %d", len(raw))
	}
}

// WalletAddress returns the counterfactual wallet address of initialOwner.
func (c *Client) WalletAddress(ctx context.Context, initialOwner common.Address) (common.Address, error) {
	out, err := c.call(ctx, factoryABI, c.contracts.Factory, "getAddress", [][]byte{OwnerBytes(initialOwner)}, big.NewInt(0))
	if err != nil {
		return common.Address{}, err
	}
	return *abiConvert[common.Address](out[0]), nil
}

// IsDeployed reports whether account has code.
func (c *Client) IsDeployed(ctx context.Context, account common.Address) (bool, error) {
	code, err := c.backend.CodeAt(ctx, account, nil)
	if err != nil {
		return false, c.rpcError("getCode", err)
	}
	return len(code) > 0, nil
}

// CreateAccount deploys the wallet of initialOwner through the factory.
func (c *Client) CreateAccount(ctx context.Context, initialOwner common.Address) (common.Hash, error) {
	data, err := factoryABI.Pack("createAccount", [][]byte{OwnerBytes(initialOwner)}, big.NewInt(0))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack createAccount: %w", err)
	}
	return c.transact(ctx, "createAccount", c.contracts.Factory, data)
}

// Owners returns every owner slot of account in index order.
func (c *Client) Owners(ctx context.Context, account common.Address) ([]model.Owner, error) {
	out, err := c.call(ctx, walletABI, account, "nextOwnerIndex")
	if err != nil {
		return nil, err
	}
	next := *abiConvert[*big.Int](out[0])
	if !next.IsUint64() {
		return nil, fmt.Errorf("owner index %s out of range", next)
	}

	owners := make([]model.Owner, 0, next.Uint64())
	for i := uint64(0); i < next.Uint64(); i++ {
		raw, err := c.ownerAtIndex(ctx, account, i)
		if err != nil {
			return nil, err
		}
		o, err := DecodeOwner(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode owner %d: %w", i, err)
		}
		owners = append(owners, o)
	}
	return owners, nil
}

func (c *Client) ownerAtIndex(ctx context.Context, account common.Address, index uint64) ([]byte, error) {
	out, err := c.call(ctx, walletABI, account, "ownerAtIndex", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	return *abiConvert[[]byte](out[0]), nil
}

// RegisteredZkAddr returns the zkAddr registered for account, zero when
// none is.
func (c *Client) RegisteredZkAddr(ctx context.Context, account common.Address) (model.ZkAddress, error) {
	out, err := c.call(ctx, verifierABI, c.contracts.Verifier, "zkAddrs", account)
	if err != nil {
		return model.ZkAddress{}, err
	}
	return model.ZkAddress(*abiConvert[[32]byte](out[0])), nil
}

// LinkRecovery adds the verifier as an owner and registers zkAddr in one
// atomic executeBatch.
func (c *Client) LinkRecovery(ctx context.Context, account common.Address, zkAddr model.ZkAddress) (common.Hash, error) {
	addOwner, err := walletABI.Pack("addOwnerAddress", c.contracts.Verifier)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack addOwnerAddress: %w", err)
	}
	setZkAddr, err := verifierABI.Pack("setZkAddr", [32]byte(zkAddr))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack setZkAddr: %w", err)
	}

	calls := []model.BatchCall{
		{Target: account, Value: big.NewInt(0), Data: addOwner},
		{Target: c.contracts.Verifier, Value: big.NewInt(0), Data: setZkAddr},
	}
	return c.ExecuteBatch(ctx, account, calls)
}

// ExecuteBatch runs calls atomically from account.
func (c *Client) ExecuteBatch(ctx context.Context, account common.Address, calls []model.BatchCall) (common.Hash, error) {
	args := make([]batchCall, len(calls))
	for i, call := range calls {
		value := call.Value
		if value == nil {
			value = big.NewInt(0)
		}
		args[i] = batchCall{Target: call.Target, Value: value, Data: call.Data}
	}

	data, err := walletABI.Pack("executeBatch", args)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack executeBatch: %w", err)
	}
	return c.transact(ctx, "executeBatch", account, data)
}

// RemoveOwnerAtIndex removes owner from slot index. The slot is re-read
// first so a stale index fails with ErrOwnerIndexConflict before sending.
func (c *Client) RemoveOwnerAtIndex(ctx context.Context, account common.Address, index uint64, owner model.Owner) (common.Hash, error) {
	raw, err := c.ownerAtIndex(ctx, account, index)
	if err != nil {
		return common.Hash{}, err
	}
	current, err := DecodeOwner(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode owner %d: %w", index, err)
	}
	if len(raw) == 0 || !current.Equal(owner) {
		return common.Hash{}, fmt.Errorf("%w: slot %d holds %s, expected %s", model.ErrOwnerIndexConflict, index, current, owner)
	}

	data, err := walletABI.Pack("removeOwnerAtIndex", new(big.Int).SetUint64(index), raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack removeOwnerAtIndex: %w", err)
	}
	return c.transact(ctx, "removeOwnerAtIndex", account, data)
}

// RecoverAccount submits the proof that adds call.NewOwner to call.Account.
func (c *Client) RecoverAccount(ctx context.Context, call model.RecoveryCall) (common.Hash, error) {
	proof := proofArg{
		Proof:         call.Proof.Proof,
		Commitments:   call.Proof.Commitments,
		CommitmentPok: call.Proof.CommitmentPok,
	}
	zeroNil(proof.Proof[:])
	zeroNil(proof.Commitments[:])
	zeroNil(proof.CommitmentPok[:])
	data, err := verifierABI.Pack("recoverAccount",
		call.Account,
		call.Idp,
		call.JwtHash,
		call.JwtHeaderJSON,
		call.JwtSignature,
		OwnerBytes(call.NewOwner),
		proof,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack recoverAccount: %w", err)
	}
	return c.transact(ctx, "recoverAccount", c.contracts.Verifier, data)
}

func zeroNil(vs []*big.Int) {
	for i, v := range vs {
		if v == nil {
			vs[i] = new(big.Int)
		}
	}
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, decodeCallError(method, err)
	}

	out, err := contract.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

func (c *Client) transact(ctx context.Context, method string, to common.Address, data []byte) (common.Hash, error) {
	chainID, err := c.chain(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	c.sendMu.Lock()
	signed, err := c.buildTx(ctx, method, chainID, to, data)
	if err == nil {
		err = c.backend.SendTransaction(ctx, signed)
		if err != nil {
			err = decodeCallError(method, err)
		}
	}
	c.sendMu.Unlock()
	if err != nil {
		c.logger.Error("Chain: transaction not sent", "method", method, "error", err)
		return common.Hash{}, err
	}

	c.logger.Info("Chain: transaction sent", "method", method, "hash", signed.Hash().Hex(), "nonce", signed.Nonce())

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return signed.Hash(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash(), &model.RevertError{Method: method, Reason: "transaction failed in block " + receipt.BlockNumber.String()}
	}

	c.logger.Info("Chain: transaction mined", "method", method, "hash", signed.Hash().Hex(), "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)

	return signed.Hash(), nil
}

func (c *Client) buildTx(ctx context.Context, method string, chainID *big.Int, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, c.rpcError("pendingNonce", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, c.rpcError("gasTipCap", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, c.rpcError("header", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      c.from,
		To:        &to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
	})
	if err != nil {
		return nil, decodeCallError(method, err)
	}
	gas += gas * gasMarginPercent / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", method, err)
	}
	return signed, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, c.rpcError("receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) chain(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, c.rpcError("chainId", err)
	}
	c.chainID = id
	return id, nil
}

func (c *Client) rpcError(step string, err error) error {
	return &model.ServiceError{Service: "eth-rpc", Step: step, Err: err}
}
