package goGuard

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/anomaly"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/totp"
)

var (
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidIdentity is returned when user or tenant id is missing.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidTOTPCode is returned when a code is not six digits.
	ErrInvalidTOTPCode = errors.New("invalid totp code format")
	// ErrInvalidBackupCode is returned when a backup code is not eight alphanumerics.
	ErrInvalidBackupCode = errors.New("invalid backup code format")
	// ErrInvalidSecret is returned when a stored secret cannot be decoded.
	ErrInvalidSecret = totp.ErrInvalidSecret
	// ErrInvalidSessionInput is returned for malformed session requests.
	ErrInvalidSessionInput = session.ErrInvalidInput

	ErrMFANotFound     = mfa.ErrNotFound
	ErrSessionNotFound = session.ErrNotFound

	ErrMFAAlreadyExists      = mfa.ErrAlreadyExists
	ErrMFANotEnabled         = mfa.ErrNotEnabled
	ErrBackupCodeAlreadyUsed = mfa.ErrBackupCodeAlreadyUsed
	ErrSessionTerminated     = session.ErrTerminated
	ErrSessionExpired        = session.ErrExpired
	// ErrSessionLimitExceeded is matched by every *LimitError.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")

	// ErrStoreUnavailable wraps durable store failures of either store.
	ErrStoreUnavailable = errors.New("durable store unavailable")
	// ErrConcurrentUpdate is returned when optimistic retries are exhausted.
	ErrConcurrentUpdate = errors.New("record concurrently modified")

	// ErrAssuranceDisabled is returned when assurance tokens are not configured.
	ErrAssuranceDisabled = errors.New("assurance tokens disabled")
	// ErrInvalidAssurance is returned when an assurance token does not validate.
	ErrInvalidAssurance = errors.New("invalid assurance token")
)

// LimitError reports which session ceiling blocked a request.
type LimitError struct {
	Violation anomaly.LimitViolation
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSessionLimitExceeded, e.Violation.String())
}

// Unwrap lets errors.Is match ErrSessionLimitExceeded.
func (e *LimitError) Unwrap() error {
	return ErrSessionLimitExceeded
}

// classify maps port-level infrastructure errors onto the root sentinels
// while keeping the original in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mfa.ErrStoreUnavailable), errors.Is(err, session.ErrStoreUnavailable):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case errors.Is(err, mfa.ErrConcurrentUpdate), errors.Is(err, session.ErrConcurrentUpdate):
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	default:
		return err
	}
}
