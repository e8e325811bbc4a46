package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	mu       sync.RWMutex
	byID     map[string]*session.Session
	tokenIdx map[string]string
}

// NewSessionRepository returns an empty repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byID:     make(map[string]*session.Session),
		tokenIdx: make(map[string]string),
	}
}

// Insert implements session.Repository.
func (r *SessionRepository) Insert(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return session.ErrAlreadyExists
	}
	if _, ok := r.tokenIdx[s.SessionToken]; ok {
		return session.ErrAlreadyExists
	}
	r.byID[s.ID] = s.Clone()
	r.tokenIdx[s.SessionToken] = s.ID
	return nil
}

// FindByID implements session.Repository.
func (r *SessionRepository) FindByID(_ context.Context, id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s.Clone(), nil
}

// FindByToken implements session.Repository.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*session.Session, error) {
	r.mu.RLock()
	id, ok := r.tokenIdx[token]
	r.mu.RUnlock()
	if !ok {
		return nil, session.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// Update implements session.Repository.
func (r *SessionRepository) Update(_ context.Context, id string, fn session.UpdateFunc) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	r.byID[id] = next
	return next.Clone(), nil
}

// ListByUser implements session.Repository, oldest first.
func (r *SessionRepository) ListByUser(_ context.Context, tenantID, userID string, activeOnly bool) ([]*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*session.Session
	for _, s := range r.byID {
		if s.TenantID != tenantID || s.UserID != userID {
			continue
		}
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CountActiveByUser implements session.Repository.
func (r *SessionRepository) CountActiveByUser(_ context.Context, tenantID, userID string) (int64, error) {
	return r.count(func(s *session.Session) bool {
		return s.IsActive && s.TenantID == tenantID && s.UserID == userID
	}), nil
}

// CountByUser implements session.Repository.
func (r *SessionRepository) CountByUser(_ context.Context, tenantID, userID string) (int64, error) {
	return r.count(func(s *session.Session) bool {
		return s.TenantID == tenantID && s.UserID == userID
	}), nil
}

// CountActiveByIP implements session.Repository.
func (r *SessionRepository) CountActiveByIP(_ context.Context, ip string) (int64, error) {
	return r.count(func(s *session.Session) bool {
		return s.IsActive && s.IPAddress == ip
	}), nil
}

// ExpireActive implements session.Repository under a single write lock.
func (r *SessionRepository) ExpireActive(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if !s.IsActive || s.ExpiresAt.After(now) {
			continue
		}
		next := s.Clone()
		next.Terminate("system", session.ReasonExpired, now)
		next.Version++
		r.byID[id] = next
		n++
	}
	return n, nil
}

func (r *SessionRepository) count(match func(*session.Session) bool) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, s := range r.byID {
		if match(s) {
			n++
		}
	}
	return n
}
