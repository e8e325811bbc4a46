package session

import "errors"

var (
	// ErrNotFound is returned when no session matches.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyExists is returned by Repository.Insert on an id or token collision.
	ErrAlreadyExists = errors.New("session already exists")
	// ErrTerminated is returned when mutating a session that is no longer active.
	ErrTerminated = errors.New("session terminated")
	// ErrExpired is returned when touching a session past its expiry.
	ErrExpired = errors.New("session expired")
	// ErrInvalidInput is returned when identity fields are missing.
	ErrInvalidInput = errors.New("invalid session input")
	// ErrConcurrentUpdate is returned when optimistic retries are exhausted.
	ErrConcurrentUpdate = errors.New("session concurrently modified")
	// ErrStoreUnavailable wraps durable store failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRedisUnavailable wraps cache failures. The Store never returns it.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
