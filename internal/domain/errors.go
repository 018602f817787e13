package domain

import "errors"

var (
	ErrInvalidAmount               = errors.New("invalid transaction amount")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientFundsForDispute = errors.New("insufficient available funds for dispute")
	ErrAccountLocked               = errors.New("account locked")

	// ErrInvariantViolation marks an internal inconsistency, such as a
	// resolve or chargeback whose held balance no longer covers the
	// disputed amount. It signals a bug, not a business failure.
	ErrInvariantViolation = errors.New("account invariant violation")
)
