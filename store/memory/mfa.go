package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/goGuard/mfa"
)

// MFAStore implements mfa.Store.
type MFAStore struct {
	mu      sync.Mutex
	records map[string]*mfa.Record
}

// NewMFAStore returns an empty store.
func NewMFAStore() *MFAStore {
	return &MFAStore{records: make(map[string]*mfa.Record)}
}

func identityKey(userID, tenantID string) string {
	return tenantID + "\x00" + userID
}

// Create implements mfa.Store.
func (s *MFAStore) Create(_ context.Context, rec *mfa.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := identityKey(rec.UserID, rec.TenantID)
	if _, ok := s.records[k]; ok {
		return mfa.ErrAlreadyExists
	}
	cp := rec.Clone()
	cp.Version = 1
	s.records[k] = cp
	rec.Version = 1
	return nil
}

// Get implements mfa.Store.
func (s *MFAStore) Get(_ context.Context, userID, tenantID string) (*mfa.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identityKey(userID, tenantID)]
	if !ok {
		return nil, mfa.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update implements mfa.Store. The lock is held across fn, so updates on the
// store are serialised.
func (s *MFAStore) Update(_ context.Context, userID, tenantID string, fn mfa.UpdateFunc) (*mfa.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := identityKey(userID, tenantID)
	cur, ok := s.records[k]
	if !ok {
		return nil, mfa.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	s.records[k] = next
	return next.Clone(), nil
}
