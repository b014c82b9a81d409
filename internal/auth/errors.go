package auth

import "errors"

var (
	// ErrDuplicateIdentity is returned when the username or email is taken.
	ErrDuplicateIdentity = errors.New("username or email already registered")
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidCredentials covers unknown username and wrong password alike,
	// so callers cannot probe which half failed.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrPendingExpired is returned when a pending login handle is unknown or
	// past its TTL.
	ErrPendingExpired = errors.New("pending login expired")
	// ErrInvalidCode covers wrong and replayed TOTP codes alike.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrAccountLocked is returned while the lockout cooldown is active.
	ErrAccountLocked = errors.New("account temporarily locked")
)
