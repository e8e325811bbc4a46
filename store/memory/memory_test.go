package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/session"
)

func TestMFAStoreUniquenessAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMFAStore()
	rec := &mfa.Record{ID: "r1", UserID: "u1", TenantID: "t1"}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, &mfa.Record{ID: "r2", UserID: "u1", TenantID: "t1"}); !errors.Is(err, mfa.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := s.Create(ctx, &mfa.Record{ID: "r3", UserID: "u1", TenantID: "t2"}); err != nil {
		t.Fatalf("other tenant should be independent: %v", err)
	}
	if _, err := s.Get(ctx, "nobody", "t1"); !errors.Is(err, mfa.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMFAStoreUpdateAbortAndVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMFAStore()
	_ = s.Create(ctx, &mfa.Record{ID: "r1", UserID: "u1", TenantID: "t1"})

	boom := errors.New("boom")
	if _, err := s.Update(ctx, "u1", "t1", func(r *mfa.Record) error {
		r.FailedAttempts = 99
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}
	got, _ := s.Get(ctx, "u1", "t1")
	if got.FailedAttempts != 0 || got.Version != 1 {
		t.Fatalf("aborted update leaked: %+v", got)
	}

	got, err := s.Update(ctx, "u1", "t1", func(r *mfa.Record) error { r.IsEnabled = true; return nil })
	if err != nil || !got.IsEnabled || got.Version != 2 {
		t.Fatalf("update: %+v %v", got, err)
	}
}

func TestMFAStoreConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewMFAStore()
	_ = s.Create(ctx, &mfa.Record{ID: "r1", UserID: "u1", TenantID: "t1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, "u1", "t1", func(r *mfa.Record) error { r.FailedAttempts++; return nil })
		}()
	}
	wg.Wait()
	got, _ := s.Get(ctx, "u1", "t1")
	if got.FailedAttempts != 50 {
		t.Fatalf("lost updates: %d", got.FailedAttempts)
	}
}

func TestSessionRepositoryExpireActive(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepository()
	now := time.Unix(1_700_000_000, 0)
	for i, exp := range []time.Duration{-time.Minute, 0, time.Hour} {
		_ = r.Insert(ctx, &session.Session{
			ID: string(rune('a' + i)), SessionToken: string(rune('A' + i)),
			UserID: "u1", TenantID: "t1", IsActive: true, ExpiresAt: now.Add(exp), Version: 1,
		})
	}
	n, err := r.ExpireActive(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("ExpireActive = %d, %v", n, err)
	}
	n, _ = r.ExpireActive(ctx, now)
	if n != 0 {
		t.Fatalf("second sweep should be a no-op, got %d", n)
	}
	a, _ := r.FindByID(ctx, "a")
	if a.IsActive || a.TerminationReason != session.ReasonExpired || a.Version != 2 {
		t.Fatalf("unexpected expired session %+v", a)
	}
	if c, _ := r.CountActiveByUser(ctx, "t1", "u1"); c != 1 {
		t.Fatalf("active count = %d", c)
	}
	if c, _ := r.CountByUser(ctx, "t1", "u1"); c != 3 {
		t.Fatalf("total count = %d", c)
	}
}

func TestSessionRepositoryInsertCollisions(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepository()
	_ = r.Insert(ctx, &session.Session{ID: "a", SessionToken: "tok"})
	if err := r.Insert(ctx, &session.Session{ID: "a", SessionToken: "tok2"}); !errors.Is(err, session.ErrAlreadyExists) {
		t.Fatalf("id collision: %v", err)
	}
	if err := r.Insert(ctx, &session.Session{ID: "b", SessionToken: "tok"}); !errors.Is(err, session.ErrAlreadyExists) {
		t.Fatalf("token collision: %v", err)
	}
	if s, err := r.FindByToken(ctx, "tok"); err != nil || s.ID != "a" {
		t.Fatalf("FindByToken: %+v %v", s, err)
	}
}

func TestEventStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewEventStore(3)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		_ = s.Save(ctx, events.Event{ID: string(rune('a' + i)), Type: events.LoginFailure, UserID: "u1", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	if s.Len() != 3 {
		t.Fatalf("capacity not enforced: %d", s.Len())
	}
	got, _ := s.Query(ctx, events.Query{UserID: "u1", Limit: 2})
	if len(got) != 2 || got[0].ID != "d" || got[1].ID != "c" {
		t.Fatalf("expected newest first, got %+v", got)
	}
	got, _ = s.Query(ctx, events.Query{Types: []events.Type{events.MFALocked}})
	if len(got) != 0 {
		t.Fatal("type filter should exclude everything")
	}
}
