package model

// State is the stage a recovery session has reached.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingCallback
	StateAuthenticated
	StateIdentityDerived
	StateWalletResolved
	StateRecoveryPending
	StateRecoveryLinked
	StateOwnerAdded
)

var stateNames = [...]string{
	StateUnauthenticated:  "unauthenticated",
	StateAwaitingCallback: "awaiting_callback",
	StateAuthenticated:    "authenticated",
	StateIdentityDerived:  "identity_derived",
	StateWalletResolved:   "wallet_resolved",
	StateRecoveryPending:  "recovery_pending",
	StateRecoveryLinked:   "recovery_linked",
	StateOwnerAdded:       "owner_added",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// AtLeast reports whether s is at or past other in the flow.
// RecoveryPending and RecoveryLinked are siblings; both count as past
// WalletResolved.
func (s State) AtLeast(other State) bool {
	return s >= other
}
