package session

import (
	"context"
	"time"
)

// MaxUpdateRetries bounds optimistic retries in Repository implementations.
const MaxUpdateRetries = 8

// UpdateFunc mutates a session in place. Returning an error aborts with no write.
type UpdateFunc func(s *Session) error

// Repository is the durable, authoritative session store.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	FindByToken(ctx context.Context, token string) (*Session, error)
	// Update applies fn atomically and bumps Version.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error)
	ListByUser(ctx context.Context, tenantID, userID string, activeOnly bool) ([]*Session, error)
	CountActiveByUser(ctx context.Context, tenantID, userID string) (int64, error)
	CountByUser(ctx context.Context, tenantID, userID string) (int64, error)
	CountActiveByIP(ctx context.Context, ip string) (int64, error)
	// ExpireActive terminates every active session whose expiry is at or
	// before now with reason "expired", in one conditional update, and
	// returns how many it changed.
	ExpireActive(ctx context.Context, now time.Time) (int64, error)
}

// Cache is the advisory fast path. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Publisher receives lifecycle notifications. *events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) int
}

// Lifecycle topics.
const (
	TopicCreated    = "session.created"
	TopicTouched    = "session.touched"
	TopicTerminated = "session.terminated"
	TopicExpired    = "session.expired"
)

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Session, error) { return nil, nil }
func (NopCache) Set(context.Context, *Session, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, string) error { return nil }
func (NopCache) Close() error { return nil }
