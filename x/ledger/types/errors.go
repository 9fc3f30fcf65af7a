package types

import "errors"

// Sentinel error kinds surfaced by the ledger. Call sites wrap these with
// the concrete amounts and limits involved so a rejection always names
// the invariant that would have been violated.
var (
	// ErrInsufficientBalance signals a transfer exceeding the sender's
	// spendable balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBelowDustFloor signals a transfer that would drop a non-exempt
	// sender below the protocol dust floor.
	ErrBelowDustFloor = errors.New("transfer would breach dust floor")

	// ErrUnknownAccount signals a read against an account that has never
	// received tokens.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrUnauthorizedParameterChange signals a params update from a caller
	// other than the module authority.
	ErrUnauthorizedParameterChange = errors.New("unauthorized parameter change")
)
