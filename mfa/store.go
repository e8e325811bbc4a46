package mfa

import "context"

// MaxUpdateRetries bounds optimistic retries in Store implementations.
const MaxUpdateRetries = 8

// UpdateFunc mutates a record in place. Returning an error aborts the update
// and nothing is written.
type UpdateFunc func(rec *Record) error

// Store persists MFA records keyed by (user, tenant).
type Store interface {
	// Create inserts rec; a second record for the same identity fails with ErrAlreadyExists.
	Create(ctx context.Context, rec *Record) error
	// Get returns a copy of the record or ErrNotFound.
	Get(ctx context.Context, userID, tenantID string) (*Record, error)
	// Update applies fn atomically and returns the stored result. Implementations
	// bump Version on every write.
	Update(ctx context.Context, userID, tenantID string, fn UpdateFunc) (*Record, error)
}
