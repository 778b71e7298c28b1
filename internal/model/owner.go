package model

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Classification is the semantic kind of a wallet owner.
type Classification string

const (
	// ClassificationZkLogin is the verifier contract.
	ClassificationZkLogin Classification = "zklogin"
	// ClassificationRemoved is a cleared owner slot.
	ClassificationRemoved Classification = "removed"
	// ClassificationEphemeral is a locally held ephemeral keypair.
	ClassificationEphemeral Classification = "ephemeral"
	// ClassificationPasskey is a P-256 public key owner.
	ClassificationPasskey Classification = "passkey"
	// ClassificationNormal is any other owner.
	ClassificationNormal Classification = "normal"
)

// Owner is the content of one owner slot. Address owners set Address,
// public key owners set PublicKey (x || y, 64 bytes). A cleared slot sets
// neither.
type Owner struct {
	Address   common.Address
	PublicKey []byte
}

// AddressOwner returns the owner for an address.
func AddressOwner(a common.Address) Owner {
	return Owner{Address: a}
}

// IsPublicKey reports whether o is a public key owner.
func (o Owner) IsPublicKey() bool {
	return len(o.PublicKey) > 0
}

// Equal reports whether both owners hold the same slot content.
func (o Owner) Equal(other Owner) bool {
	return o.Address == other.Address && bytes.Equal(o.PublicKey, other.PublicKey)
}

func (o Owner) String() string {
	if o.IsPublicKey() {
		return hexutil.Encode(o.PublicKey)
	}
	return o.Address.Hex()
}

// OwnerRecord is an on-chain owner at a given index. PublicKey is set only
// for passkey owners, whose Address is zero.
type OwnerRecord struct {
	Address        common.Address
	PublicKey      []byte
	Index          uint64
	Classification Classification
}

// Owner returns the slot content of r.
func (r OwnerRecord) Owner() Owner {
	return Owner{Address: r.Address, PublicKey: r.PublicKey}
}
