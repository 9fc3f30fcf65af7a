package types

import "errors"

var (
	// ErrUnknownTier signals a principal below the lowest tier minimum.
	ErrUnknownTier = errors.New("principal below minimum stake tier")

	// ErrPurchaseLimitExceeded signals a new stake exceeding the
	// per-UTC-day launch-window limit. The whole operation is rejected.
	ErrPurchaseLimitExceeded = errors.New("daily purchase limit exceeded")

	// ErrNoPosition signals an operation against an account with no
	// active stake position.
	ErrNoPosition = errors.New("no active stake position")

	// ErrInvalidEquityLock signals an equity lock other than 0/100/300.
	ErrInvalidEquityLock = errors.New("equity lock days must be 0, 100 or 300")
)
