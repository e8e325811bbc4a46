package mfa

import "errors"

var (
	// ErrNotFound is returned when no record exists for the identity.
	ErrNotFound = errors.New("mfa record not found")
	// ErrAlreadyExists is returned by Store.Create when the identity already has a record.
	ErrAlreadyExists = errors.New("mfa record already exists")
	// ErrNotEnabled is returned when a verification is attempted on a disabled record.
	ErrNotEnabled = errors.New("mfa is not enabled")
	// ErrBackupCodeAlreadyUsed is returned when a consumed backup code is presented again.
	ErrBackupCodeAlreadyUsed = errors.New("backup code already used")
	// ErrConcurrentUpdate is returned when optimistic retries are exhausted.
	ErrConcurrentUpdate = errors.New("mfa record concurrently modified")
	// ErrStoreUnavailable wraps infrastructure failures of a Store.
	ErrStoreUnavailable = errors.New("mfa store unavailable")
)
