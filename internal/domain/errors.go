package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrPartyAlreadyExists = errors.New("party_already_exists")
	ErrPartyNotFound      = errors.New("party_not_found")
	ErrAuctionNotFound    = errors.New("auction_not_found")
	ErrBidNotFound        = errors.New("bid_not_found")

	// ErrConflict signals that a conditional write lost a race against a
	// concurrent operation. The attempt aborted with no partial writes;
	// retrying is a caller decision.
	ErrConflict = errors.New("conflict")
)

// ValidationError represents a request validation failure. Validation
// errors are raised before any store access.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvalidStateError represents a settlement-lifecycle violation with a
// fixed user-facing message.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// PreconditionFailedError represents a missing settlement precondition
// with a fixed user-facing message.
type PreconditionFailedError struct {
	Message string
}

func (e *PreconditionFailedError) Error() string {
	return e.Message
}

// DependencyError wraps an unexpected failure from a backing dependency
// (typically the store). It is fatal to the current attempt and is never
// raised after a partial write.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
