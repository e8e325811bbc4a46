package events

import (
	"context"
	"time"
)

// Store persists events for later review.
type Store interface {
	Save(ctx context.Context, event Event) error
	Query(ctx context.Context, q Query) ([]Event, error)
}

// Query filters stored events. Zero fields match everything. Results are
// newest first; Limit <= 0 means no limit.
type Query struct {
	UserID   string
	TenantID string
	Types    []Type
	Since    time.Time
	Limit    int
}

// Matches reports whether ev satisfies q.
func (q Query) Matches(ev Event) bool {
	if q.UserID != "" && ev.UserID != q.UserID {
		return false
	}
	if q.TenantID != "" && ev.TenantID != q.TenantID {
		return false
	}
	if !q.Since.IsZero() && ev.Timestamp.Before(q.Since) {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}
