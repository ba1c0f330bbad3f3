package domain

import "errors"

var (
	// ErrCollaborator is a ledger, RPC or HTTP failure. It causes a cycle skip
	// or a single failed instruction and never propagates further.
	ErrCollaborator = errors.New("collaborator error")

	// ErrRateLimited is returned by collaborators that were throttled.
	// Callers treat it as a no-op and try again on the next poll.
	ErrRateLimited = errors.New("rate limited")

	// ErrInsufficientPool is the business condition of a balance below the
	// configured minimum. It skips the cycle.
	ErrInsufficientPool = errors.New("insufficient pool")

	// ErrSnapshot marks a failed holder snapshot.
	ErrSnapshot = errors.New("holder snapshot failed")

	// ErrConfiguration is fatal at startup only.
	ErrConfiguration = errors.New("invalid configuration")
)
