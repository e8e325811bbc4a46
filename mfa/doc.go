// Package mfa owns the per-identity MFA record and its state machine.
//
// Transitions are pure functions over *Record: they take the record and the
// current time, mutate it in place, and append exactly one activity entry.
// Persistence goes through the [Store] port, whose Update method gives every
// transition an atomic read-modify-write so concurrent attempts on the same
// record are never lost.
//
// # States
//
//	uninitialized -> pending -> active <-> locked
//	                       \-> disabled
//
// locked is derived from LockedUntil and is never stored as a flag.
//
// # What this package must NOT do
//
//   - Generate or verify codes itself (see package totp).
//   - Talk to a database, cache, or event bus directly.
package mfa
