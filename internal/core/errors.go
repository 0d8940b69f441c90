package core

import "errors"

var (
	// ErrAlreadyApplied reports that a payment id already produced a ledger
	// mutation.
	ErrAlreadyApplied = errors.New("payment already applied")

	// ErrProfileNotFound reports a missing user profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInsufficientCredits reports a balance too small for a consultation.
	ErrInsufficientCredits = errors.New("insufficient credits")
)
