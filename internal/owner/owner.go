// Package owner classifies on-chain wallet owners.
package owner

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

// Reconcile classifies each owner by index. The first matching rule wins:
// public key owner, then verifier, then the zero sentinel of a cleared slot,
// then a locally held ephemeral address, otherwise normal. Indices are
// preserved.
func Reconcile(owners []model.Owner, verifier, zero common.Address, local map[common.Address]struct{}) []model.OwnerRecord {
	records := make([]model.OwnerRecord, len(owners))
	for i, o := range owners {
		records[i] = model.OwnerRecord{
			Address:        o.Address,
			PublicKey:      o.PublicKey,
			Index:          uint64(i),
			Classification: classify(o, verifier, zero, local),
		}
	}
	return records
}

func classify(o model.Owner, verifier, zero common.Address, local map[common.Address]struct{}) model.Classification {
	if o.IsPublicKey() {
		return model.ClassificationPasskey
	}
	addr := o.Address
	switch {
	case addr == verifier:
		return model.ClassificationZkLogin
	case addr == zero:
		return model.ClassificationRemoved
	}
	if _, ok := local[addr]; ok {
		return model.ClassificationEphemeral
	}
	return model.ClassificationNormal
}

// LocalSet returns the addresses of every known keypair.
func LocalSet(keypairs []model.EphemeralKeypair) map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(keypairs))
	for _, kp := range keypairs {
		set[kp.Address] = struct{}{}
	}
	return set
}

// Find returns the first record with the given classification.
func Find(records []model.OwnerRecord, c model.Classification) (model.OwnerRecord, bool) {
	for _, r := range records {
		if r.Classification == c {
			return r, true
		}
	}
	return model.OwnerRecord{}, false
}
