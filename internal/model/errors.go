package model

import (
	"errors"
	"fmt"
)

// Validation errors: rejected before any network call.
var (
	ErrValidation   = errors.New("validation failed")
	ErrMissingClaim = fmt.Errorf("%w: missing claim", ErrValidation)
	ErrClaimTooLong = fmt.Errorf("%w: claim exceeds buffer capacity", ErrValidation)
)

// Binding errors: the session must be discarded and restarted.
var (
	ErrBinding        = errors.New("nonce binding mismatch")
	ErrMalformedToken = errors.New("malformed id token")
	ErrTokenSignature = fmt.Errorf("%w: signature verification failed", ErrMalformedToken)
)

// Format errors: fatal for the current proof attempt.
var (
	ErrMalformedProof             = errors.New("malformed proof")
	ErrUnsupportedCommitmentCount = fmt.Errorf("%w: unsupported commitment count", ErrMalformedProof)
)

var (
	ErrService            = errors.New("external service failure")
	ErrOnChain            = errors.New("on-chain call reverted")
	ErrOwnerIndexConflict = fmt.Errorf("%w: owner index conflict", ErrOnChain)
	ErrWalletNotDeployed  = errors.New("wallet is not deployed")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrStaleTransition    = errors.New("session changed while operation was in flight")
	ErrNotFound           = errors.New("not found")
	ErrDerivationMismatch = errors.New("remote derivation differs from local result")
)

// ServiceError describes a failed call to an external collaborator.
// It is retryable: the flow resumes at the state it failed in.
type ServiceError struct {
	Service    string
	Step       string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s service returned status %d: %v", e.Step, e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s service: %v", e.Step, e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrService }

// Retryable reports whether repeating the same step may succeed.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// RevertError carries the decoded revert reason of a contract call.
type RevertError struct {
	Method string
	// Name is the custom error name, empty for Error(string) reverts.
	Name   string
	Reason string
	Args   []any
}

func (e *RevertError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("%s reverted: %s%v", e.Method, e.Name, e.Args)
	case e.Reason != "":
		return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
	default:
		return fmt.Sprintf("%s reverted", e.Method)
	}
}

func (e *RevertError) Is(target error) bool {
	switch target {
	case ErrOnChain:
		return true
	case ErrOwnerIndexConflict:
		return e.Name == "WrongOwnerAtIndex" || e.Name == "NoOwnerAtIndex"
	}
	return false
}
