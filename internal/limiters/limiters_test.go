package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func TestAnomalyGateAdmitsOncePerWindow(t *testing.T) {
	rdb, mr := newRedis(t)
	g := NewAnomalyGate(rdb, "gs", time.Minute)
	ctx := context.Background()

	ok, err := g.Admit(ctx, "sid-1", "impossible-travel")
	if err != nil || !ok {
		t.Fatalf("first admit = %v, %v", ok, err)
	}
	if ok, _ := g.Admit(ctx, "sid-1", "impossible-travel"); ok {
		t.Fatal("second admit in window must be refused")
	}
	if ok, _ := g.Admit(ctx, "sid-1", "device-churn"); !ok {
		t.Fatal("other kinds are independent")
	}
	if ttl := mr.TTL("gs:anom:impossible-travel:sid-1"); ttl != time.Minute {
		t.Fatalf("ttl = %s", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if ok, _ := g.Admit(ctx, "sid-1", "impossible-travel"); !ok {
		t.Fatal("new window should admit again")
	}
}

func TestAnomalyGateNilAdmits(t *testing.T) {
	var g *AnomalyGate
	if ok, err := g.Admit(context.Background(), "s", "k"); !ok || err != nil {
		t.Fatal("nil gate should admit")
	}
}

func TestAnomalyGateUnavailable(t *testing.T) {
	rdb, mr := newRedis(t)
	g := NewAnomalyGate(rdb, "", 0)
	mr.Close()
	if _, err := g.Admit(context.Background(), "s", "k"); !errors.Is(err, ErrGateUnavailable) {
		t.Fatalf("expected ErrGateUnavailable, got %v", err)
	}
}

func TestAttemptLimiter(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewAttemptLimiter(rdb, "gs", AttemptLimiterConfig{MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Hit(ctx, "203.0.113.1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := l.Hit(ctx, "203.0.113.1"); !errors.Is(err, ErrAttemptsRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if err := l.Hit(ctx, "203.0.113.2"); err != nil {
		t.Fatalf("other address should be independent: %v", err)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.Hit(ctx, "203.0.113.1"); err != nil {
		t.Fatalf("window should reset: %v", err)
	}
	_ = l.Reset(ctx, "203.0.113.1")
	if mr.Exists("gs:att:203.0.113.1") {
		t.Fatal("reset should delete the counter")
	}
}
