package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/zklogin-recovery/internal/model"
	"github.com/dtroode/zklogin-recovery/internal/testutil"
)

var (
	testFactory  = common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
	testVerifier = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	testIdp      = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testWallet   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type revertErr struct{ data string }

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorData() interface{} { return e.data }

// fakeNode implements ethBackend with canned contract state.
type fakeNode struct {
	mu sync.Mutex

	code    map[common.Address][]byte
	owners  [][]byte
	zkAddrs map[common.Address][32]byte

	estimateErr   error
	receiptStatus uint64
	receiptMisses int

	sent       []*types.Transaction
	getAddress [][]byte
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		code:          map[common.Address][]byte{},
		zkAddrs:       map[common.Address][32]byte{},
		receiptStatus: types.ReceiptStatusSuccessful,
		receiptMisses: 1,
	}
}

func (f *fakeNode) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeNode) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range []abi.ABI{factoryABI, walletABI, verifierABI} {
		m, err := a.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		in, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		switch m.Name {
		case "getAddress":
			f.getAddress = *abiConvert[[][]byte](in[0])
			return m.Outputs.Pack(testWallet)
		case "nextOwnerIndex":
			return m.Outputs.Pack(big.NewInt(int64(len(f.owners))))
		case "ownerAtIndex":
			i := (*abiConvert[*big.Int](in[0])).Int64()
			if i >= int64(len(f.owners)) {
				return m.Outputs.Pack([]byte{})
			}
			return m.Outputs.Pack(f.owners[i])
		case "zkAddrs":
			return m.Outputs.Pack(f.zkAddrs[*abiConvert[common.Address](in[0])])
		}
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeNode) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code[account], nil
}

func (f *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeNode) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeNode) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10)}, nil
}

func (f *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100_000, nil
}

func (f *fakeNode) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeNode) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptMisses > 0 {
		f.receiptMisses--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.receiptStatus, BlockNumber: big.NewInt(7), GasUsed: 90_000}, nil
}

func newTestClient(t *testing.T) (*Client, *fakeNode, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	node := newFakeNode()
	c := NewClientWithBackend(node, key, Contracts{Factory: testFactory, Verifier: testVerifier, Idp: testIdp}, testutil.MakeNoopLogger())
	c.pollInterval = time.Millisecond
	return c, node, key
}

func unpackTx(t *testing.T, a abi.ABI, method string, tx *types.Transaction) []any {
	t.Helper()
	m, ok := a.Methods[method]
	require.True(t, ok)
	require.True(t, bytes.Equal(m.ID, tx.Data()[:4]), "selector of %s", method)
	vals, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	return vals
}

func TestDecodeOwner(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	pub := bytes.Repeat([]byte{0xab}, 64)

	tests := []struct {
		name    string
		raw     []byte
		want    model.Owner
		wantErr bool
	}{
		{"cleared slot", nil, model.Owner{}, false},
		{"address owner", OwnerBytes(addr), model.AddressOwner(addr), false},
		{"public key owner", pub, model.Owner{PublicKey: pub}, false},
		{"bad length", []byte{1, 2, 3}, model.Owner{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeOwner(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_WalletAddress(t *testing.T) {
	c, node, _ := newTestClient(t)

	got, err := c.WalletAddress(context.Background(), c.From())
	require.NoError(t, err)
	assert.Equal(t, testWallet, got)
	require.Len(t, node.getAddress, 1)
	assert.Equal(t, OwnerBytes(c.From()), node.getAddress[0])
}

func TestClient_SetPollInterval(t *testing.T) {
	c, _, _ := newTestClient(t)
	start := c.pollInterval

	c.SetPollInterval(0)
	assert.Equal(t, start, c.pollInterval)

	c.SetPollInterval(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.pollInterval)
}

func TestClient_IsDeployed(t *testing.T) {
	c, node, _ := newTestClient(t)

	deployed, err := c.IsDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, deployed)

	node.code[testWallet] = []byte{0x60}
	deployed, err = c.IsDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, deployed)
}

func TestClient_OwnersAndZkAddr(t *testing.T) {
	c, node, _ := newTestClient(t)
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	node.owners = [][]byte{OwnerBytes(c.From()), {}, OwnerBytes(testVerifier), OwnerBytes(other)}
	node.zkAddrs[testWallet] = [32]byte{1, 2, 3}

	owners, err := c.Owners(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, []model.Owner{
		model.AddressOwner(c.From()),
		{},
		model.AddressOwner(testVerifier),
		model.AddressOwner(other),
	}, owners)

	zk, err := c.RegisteredZkAddr(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, model.ZkAddress{1, 2, 3}, zk)
}

func TestClient_CreateAccount(t *testing.T) {
	c, node, key := newTestClient(t)

	hash, err := c.CreateAccount(context.Background(), c.From())
	require.NoError(t, err)
	require.Len(t, node.sent, 1)

	tx := node.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, testFactory, *tx.To())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(21), tx.GasFeeCap())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)

	vals := unpackTx(t, factoryABI, "createAccount", tx)
	assert.Equal(t, [][]byte{OwnerBytes(c.From())}, *abiConvert[[][]byte](vals[0]))
}

func TestClient_LinkRecovery(t *testing.T) {
	c, node, _ := newTestClient(t)
	zk := model.ZkAddress{0xaa}

	_, err := c.LinkRecovery(context.Background(), testWallet, zk)
	require.NoError(t, err)
	require.Len(t, node.sent, 1)

	tx := node.sent[0]
	assert.Equal(t, testWallet, *tx.To())

	vals := unpackTx(t, walletABI, "executeBatch", tx)
	calls := *abiConvert[[]batchCall](vals[0])
	require.Len(t, calls, 2)

	assert.Equal(t, testWallet, calls[0].Target)
	addOwner := walletABI.Methods["addOwnerAddress"]
	assert.Equal(t, addOwner.ID, calls[0].Data[:4])
	args, err := addOwner.Inputs.Unpack(calls[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, testVerifier, *abiConvert[common.Address](args[0]))

	assert.Equal(t, testVerifier, calls[1].Target)
	setZk := verifierABI.Methods["setZkAddr"]
	assert.Equal(t, setZk.ID, calls[1].Data[:4])
	args, err = setZk.Inputs.Unpack(calls[1].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, [32]byte(zk), *abiConvert[[32]byte](args[0]))
}

func TestClient_RemoveOwnerAtIndex(t *testing.T) {
	c, node, _ := newTestClient(t)
	eph := common.HexToAddress("0x4444444444444444444444444444444444444444")
	pub := bytes.Repeat([]byte{0xcd}, 64)
	node.owners = [][]byte{OwnerBytes(c.From()), OwnerBytes(eph), pub}

	t.Run("stale index", func(t *testing.T) {
		_, err := c.RemoveOwnerAtIndex(context.Background(), testWallet, 0, model.AddressOwner(eph))
		assert.ErrorIs(t, err, model.ErrOwnerIndexConflict)
		assert.Empty(t, node.sent)
	})

	t.Run("cleared slot", func(t *testing.T) {
		_, err := c.RemoveOwnerAtIndex(context.Background(), testWallet, 5, model.Owner{})
		assert.ErrorIs(t, err, model.ErrOwnerIndexConflict)
	})

	t.Run("different public key", func(t *testing.T) {
		_, err := c.RemoveOwnerAtIndex(context.Background(), testWallet, 2, model.Owner{PublicKey: bytes.Repeat([]byte{0xef}, 64)})
		assert.ErrorIs(t, err, model.ErrOwnerIndexConflict)
		assert.Empty(t, node.sent)
	})

	t.Run("matching slot", func(t *testing.T) {
		_, err := c.RemoveOwnerAtIndex(context.Background(), testWallet, 1, model.AddressOwner(eph))
		require.NoError(t, err)
		require.Len(t, node.sent, 1)

		vals := unpackTx(t, walletABI, "removeOwnerAtIndex", node.sent[0])
		assert.Equal(t, int64(1), (*abiConvert[*big.Int](vals[0])).Int64())
		assert.Equal(t, OwnerBytes(eph), *abiConvert[[]byte](vals[1]))
	})

	t.Run("public key slot", func(t *testing.T) {
		_, err := c.RemoveOwnerAtIndex(context.Background(), testWallet, 2, model.Owner{PublicKey: pub})
		require.NoError(t, err)
		require.Len(t, node.sent, 2)

		vals := unpackTx(t, walletABI, "removeOwnerAtIndex", node.sent[1])
		assert.Equal(t, int64(2), (*abiConvert[*big.Int](vals[0])).Int64())
		assert.Equal(t, pub, *abiConvert[[]byte](vals[1]))
	})
}

func TestClient_RecoverAccount(t *testing.T) {
	c, node, _ := newTestClient(t)
	newOwner := common.HexToAddress("0x5555555555555555555555555555555555555555")

	var payload model.ProofPayload
	for i := range payload.Proof {
		payload.Proof[i] = big.NewInt(int64(i + 1))
	}
	payload.Commitments = [2]*big.Int{big.NewInt(11), big.NewInt(12)}
	payload.CommitmentPok = [2]*big.Int{big.NewInt(21), big.NewInt(22)}

	call := model.RecoveryCall{
		Account:       testWallet,
		Idp:           testIdp,
		JwtHash:       [32]byte{9},
		JwtHeaderJSON: `{"alg":"RS256","kid":"k1"}`,
		JwtSignature:  []byte{1, 2, 3},
		NewOwner:      newOwner,
		Proof:         payload,
	}
	_, err := c.RecoverAccount(context.Background(), call)
	require.NoError(t, err)
	require.Len(t, node.sent, 1)
	assert.Equal(t, testVerifier, *node.sent[0].To())

	vals := unpackTx(t, verifierABI, "recoverAccount", node.sent[0])
	require.Len(t, vals, 7)
	assert.Equal(t, testWallet, *abiConvert[common.Address](vals[0]))
	assert.Equal(t, testIdp, *abiConvert[common.Address](vals[1]))
	assert.Equal(t, [32]byte{9}, *abiConvert[[32]byte](vals[2]))
	assert.Equal(t, call.JwtHeaderJSON, *abiConvert[string](vals[3]))
	assert.Equal(t, []byte{1, 2, 3}, *abiConvert[[]byte](vals[4]))
	assert.Equal(t, OwnerBytes(newOwner), *abiConvert[[]byte](vals[5]))

	got := *abiConvert[proofArg](vals[6])
	for i := range payload.Proof {
		assert.Equal(t, 0, payload.Proof[i].Cmp(got.Proof[i]))
	}
	assert.Equal(t, 0, got.CommitmentPok[1].Cmp(big.NewInt(22)))
}

func TestClient_Reverts(t *testing.T) {
	t.Run("custom error", func(t *testing.T) {
		c, node, _ := newTestClient(t)
		e := walletABI.Errors["WrongOwnerAtIndex"]
		args, err := e.Inputs.Pack(big.NewInt(1), []byte{1}, []byte{2})
		require.NoError(t, err)
		node.estimateErr = revertErr{data: hexutil.Encode(append(append([]byte{}, e.ID[:4]...), args...))}

		_, err = c.ExecuteBatch(context.Background(), testWallet, nil)
		require.Error(t, err)

		var revert *model.RevertError
		require.ErrorAs(t, err, &revert)
		assert.Equal(t, "WrongOwnerAtIndex", revert.Name)
		assert.Len(t, revert.Args, 3)
		assert.ErrorIs(t, err, model.ErrOwnerIndexConflict)
		assert.Empty(t, node.sent)
	})

	t.Run("error string", func(t *testing.T) {
		c, node, _ := newTestClient(t)
		strType, _ := abi.NewType("string", "", nil)
		packed, err := abi.Arguments{{Type: strType}}.Pack("invalid proof")
		require.NoError(t, err)
		data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
		node.estimateErr = revertErr{data: hexutil.Encode(data)}

		_, err = c.RecoverAccount(context.Background(), model.RecoveryCall{})
		var revert *model.RevertError
		require.ErrorAs(t, err, &revert)
		assert.Equal(t, "invalid proof", revert.Reason)
		assert.ErrorIs(t, err, model.ErrOnChain)
		assert.NotErrorIs(t, err, model.ErrOwnerIndexConflict)
	})

	t.Run("transport failure", func(t *testing.T) {
		c, node, _ := newTestClient(t)
		node.estimateErr = errors.New("connection refused")

		_, err := c.CreateAccount(context.Background(), c.From())
		assert.ErrorIs(t, err, model.ErrService)
	})

	t.Run("failed receipt", func(t *testing.T) {
		c, node, _ := newTestClient(t)
		node.receiptStatus = types.ReceiptStatusFailed

		_, err := c.CreateAccount(context.Background(), c.From())
		assert.ErrorIs(t, err, model.ErrOnChain)
	})
}
