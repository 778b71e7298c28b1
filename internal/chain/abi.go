package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const factoryABIJSON = `[
  {"type":"function","name":"getAddress","stateMutability":"view",
   "inputs":[{"name":"owners","type":"bytes[]"},{"name":"nonce","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"createAccount","stateMutability":"payable",
   "inputs":[{"name":"owners","type":"bytes[]"},{"name":"nonce","type":"uint256"}],
   "outputs":[{"name":"account","type":"address"}]},
  {"type":"error","name":"OwnerRequired","inputs":[]}
]`

const walletABIJSON = `[
  {"type":"function","name":"nextOwnerIndex","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ownerAtIndex","stateMutability":"view",
   "inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"bytes"}]},
  {"type":"function","name":"addOwnerAddress","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"}],"outputs":[]},
  {"type":"function","name":"removeOwnerAtIndex","stateMutability":"nonpayable",
   "inputs":[{"name":"index","type":"uint256"},{"name":"owner","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"executeBatch","stateMutability":"payable",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"value","type":"uint256"},
     {"name":"data","type":"bytes"}]}],
   "outputs":[]},
  {"type":"error","name":"AlreadyOwner","inputs":[{"name":"owner","type":"bytes"}]},
  {"type":"error","name":"Initialized","inputs":[]},
  {"type":"error","name":"InvalidEthereumAddressOwner","inputs":[{"name":"owner","type":"bytes"}]},
  {"type":"error","name":"InvalidNonceKey","inputs":[{"name":"key","type":"uint256"}]},
  {"type":"error","name":"InvalidOwnerBytesLength","inputs":[{"name":"owner","type":"bytes"}]},
  {"type":"error","name":"LastOwner","inputs":[]},
  {"type":"error","name":"NoOwnerAtIndex","inputs":[{"name":"index","type":"uint256"}]},
  {"type":"error","name":"NotLastOwner","inputs":[{"name":"ownersRemaining","type":"uint256"}]},
  {"type":"error","name":"SelectorNotAllowed","inputs":[{"name":"selector","type":"bytes4"}]},
  {"type":"error","name":"Unauthorized","inputs":[]},
  {"type":"error","name":"UnauthorizedCallContext","inputs":[]},
  {"type":"error","name":"UpgradeFailed","inputs":[]},
  {"type":"error","name":"WrongOwnerAtIndex","inputs":[
    {"name":"index","type":"uint256"},
    {"name":"expectedOwner","type":"bytes"},
    {"name":"actualOwner","type":"bytes"}]}
]`

const verifierABIJSON = `[
  {"type":"function","name":"zkAddrs","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"zkAddr","type":"bytes32"}]},
  {"type":"function","name":"setZkAddr","stateMutability":"nonpayable",
   "inputs":[{"name":"zkAddr","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"recoverAccount","stateMutability":"nonpayable",
   "inputs":[
     {"name":"account","type":"address"},
     {"name":"idp","type":"address"},
     {"name":"jwtHash","type":"bytes32"},
     {"name":"jwtHeaderJson","type":"string"},
     {"name":"jwtSignature","type":"bytes"},
     {"name":"newOwner","type":"bytes"},
     {"name":"proof","type":"tuple","components":[
       {"name":"proof","type":"uint256[8]"},
       {"name":"commitments","type":"uint256[2]"},
       {"name":"commitmentPok","type":"uint256[2]"}]}],
   "outputs":[]},
  {"type":"error","name":"AlreadyInitialized","inputs":[]},
  {"type":"error","name":"NewOwnerIsZeroAddress","inputs":[]},
  {"type":"error","name":"NoHandoverRequest","inputs":[]},
  {"type":"error","name":"Unauthorized","inputs":[]}
]`

var (
	factoryABI  = mustParse(factoryABIJSON)
	walletABI   = mustParse(walletABIJSON)
	verifierABI = mustParse(verifierABIJSON)
)

// knownErrors indexes every custom error by its 4-byte selector.
var knownErrors = indexErrors(factoryABI, walletABI, verifierABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: invalid abi: " + err.Error())
	}
	return parsed
}

func indexErrors(abis ...abi.ABI) map[[4]byte]abi.Error {
	idx := make(map[[4]byte]abi.Error)
	for _, a := range abis {
		for _, e := range a.Errors {
			var sel [4]byte
			copy(sel[:], e.ID[:4])
			idx[sel] = e
		}
	}
	return idx
}

type batchCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

type proofArg struct {
	Proof         [8]*big.Int
	Commitments   [2]*big.Int
	CommitmentPok [2]*big.Int
}
