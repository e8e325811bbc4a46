package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingCache struct{ session.NopCache }

func (failingCache) Get(context.Context, string) (*session.Session, error) {
	return nil, session.ErrRedisUnavailable
}
func (failingCache) Set(context.Context, *session.Session, time.Duration) error {
	return session.ErrRedisUnavailable
}

// stallingCache is an in-memory cache whose next Set can be held until
// release is closed.
type stallingCache struct {
	mu      sync.Mutex
	entries map[string]*session.Session
	stall   bool
	entered chan struct{}
	release chan struct{}
}

func newStallingCache() *stallingCache {
	return &stallingCache{
		entries: map[string]*session.Session{},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *stallingCache) stallNextSet() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stall = true
}

func (c *stallingCache) Get(_ context.Context, id string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[id]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (c *stallingCache) Set(_ context.Context, s *session.Session, _ time.Duration) error {
	c.mu.Lock()
	stall := c.stall
	c.stall = false
	c.mu.Unlock()
	if stall {
		close(c.entered)
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.ID] = s.Clone()
	return nil
}

func (c *stallingCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *stallingCache) Close() error { return nil }

type topics struct {
	mu  sync.Mutex
	got []string
}

func (t *topics) Publish(_ context.Context, topic string, _ any) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.got = append(t.got, topic)
	return 1
}

const uaChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newStore(t *testing.T, opts ...session.Option) (*session.Store, *memory.SessionRepository, *clock) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0).UTC()}
	repo := memory.NewSessionRepository()
	opts = append([]session.Option{session.WithClock(clk.Now)}, opts...)
	return session.NewStore(repo, session.Config{}, opts...), repo, clk
}

func createInput() session.CreateInput {
	return session.CreateInput{
		UserID:   "u1",
		TenantID: "t1",
		Origin:   session.Origin{IPAddress: "198.51.100.7", UserAgent: uaChrome},
	}
}

func TestCreateDefaults(t *testing.T) {
	pub := &topics{}
	store, _, clk := newStore(t, session.WithPublisher(pub))
	sess, err := store.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(sess.SessionToken) < 32 || sess.ID == "" || !sess.IsActive {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !sess.ExpiresAt.Equal(clk.Now().Add(24 * time.Hour)) {
		t.Fatalf("expiresAt = %s", sess.ExpiresAt)
	}
	if sess.DeviceInfo.Browser != "Chrome" || sess.DeviceInfo.Fingerprint == "" {
		t.Fatalf("device not resolved: %+v", sess.DeviceInfo)
	}
	if !sess.Location.IsUnknown() {
		t.Fatalf("no locator configured, expected unknown location: %+v", sess.Location)
	}
	if len(pub.got) != 1 || pub.got[0] != session.TopicCreated {
		t.Fatalf("published %v", pub.got)
	}
}

func TestCreateRejectsMissingIdentity(t *testing.T) {
	store, _, _ := newStore(t)
	in := createInput()
	in.TenantID = ""
	if _, err := store.Create(context.Background(), in); !errors.Is(err, session.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateLogsLocatorFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	locator := device.LocatorFunc(func(context.Context, string) (device.Location, error) {
		return device.Location{}, errors.New("geo down")
	})
	store, _, _ := newStore(t, session.WithLocator(locator), session.WithLogger(zap.New(core)))
	sess, err := store.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("geolocation failure must not fail create: %v", err)
	}
	if sess.Location.Country != "Unknown" {
		t.Fatalf("location = %+v", sess.Location)
	}
	if logs.FilterMessage("goGuard: location lookup failed").Len() != 1 {
		t.Fatal("locator failure should be logged")
	}
}

func TestCreateSurvivesPanickingLocator(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	locator := device.LocatorFunc(func(context.Context, string) (device.Location, error) {
		panic("geo provider bug")
	})
	store, _, _ := newStore(t, session.WithLocator(locator), session.WithLogger(zap.New(core)))
	sess, err := store.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sess.Location.IsUnknown() {
		t.Fatalf("location = %+v", sess.Location)
	}
	if logs.FilterMessage("goGuard: location lookup failed").Len() != 1 {
		t.Fatal("recovered locator panic should be logged")
	}
}

func TestExpiryThenSweep(t *testing.T) {
	store, _, clk := newStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, createInput())

	clk.Advance(25 * time.Hour)
	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st := store.StatusOf(got); st != session.StatusExpired {
		t.Fatalf("status before sweep = %s", st)
	}
	if _, err := store.Touch(ctx, sess.ID, session.Origin{}); !errors.Is(err, session.ErrExpired) {
		t.Fatalf("touch after expiry: %v", err)
	}

	n, err := store.SweepExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	got, _ = store.Get(ctx, sess.ID)
	if st := store.StatusOf(got); st != session.StatusTerminated || got.TerminationReason != session.ReasonExpired {
		t.Fatalf("after sweep: status=%s reason=%s", st, got.TerminationReason)
	}
	if n, _ := store.SweepExpired(ctx); n != 0 {
		t.Fatalf("second sweep changed %d sessions", n)
	}
}

func TestTouchAndTerminate(t *testing.T) {
	pub := &topics{}
	store, _, clk := newStore(t, session.WithPublisher(pub))
	ctx := context.Background()
	sess, _ := store.Create(ctx, createInput())

	clk.Advance(10 * time.Minute)
	touched, err := store.Touch(ctx, sess.ID, session.Origin{IPAddress: "198.51.100.8"})
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !touched.LastActivity.Equal(clk.Now()) || touched.IPAddress != "198.51.100.8" || touched.Version != 2 {
		t.Fatalf("touch result %+v", touched)
	}

	term, err := store.Terminate(ctx, sess.ID, "u1", session.ReasonLogout)
	if err != nil || term.IsActive {
		t.Fatalf("terminate: %+v %v", term, err)
	}
	if _, err := store.Terminate(ctx, sess.ID, "admin", "again"); !errors.Is(err, session.ErrTerminated) {
		t.Fatalf("second terminate: %v", err)
	}
	if _, err := store.Touch(ctx, sess.ID, session.Origin{}); !errors.Is(err, session.ErrTerminated) {
		t.Fatalf("touch after terminate: %v", err)
	}
	got, _ := store.Get(ctx, sess.ID)
	if got.TerminatedBy != "u1" || got.TerminationReason != session.ReasonLogout {
		t.Fatalf("termination fields changed: %+v", got)
	}
	want := []string{session.TopicCreated, session.TopicTouched, session.TopicTerminated}
	if len(pub.got) != len(want) {
		t.Fatalf("published %v", pub.got)
	}
}

func TestTerminatedSessionNotServedFromCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store, _, _ := newStore(t, session.WithCache(session.NewRedisCache(rdb, "gs")))
	ctx := context.Background()
	sess, _ := store.Create(ctx, createInput())
	if !mr.Exists("gs:" + sess.ID) {
		t.Fatal("create should populate the cache")
	}
	if _, err := store.Terminate(ctx, sess.ID, "u1", session.ReasonLogout); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if mr.Exists("gs:" + sess.ID) {
		t.Fatal("terminate should evict the cache entry")
	}
	got, _ := store.Get(ctx, sess.ID)
	if got.IsActive {
		t.Fatal("stale active copy served")
	}
}

func TestLateCacheWriteCannotResurrectTerminatedSession(t *testing.T) {
	cache := newStallingCache()
	store, _, _ := newStore(t, session.WithCache(cache))
	ctx := context.Background()
	sess, err := store.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cache.stallNextSet()
	touched := make(chan error, 1)
	go func() {
		_, err := store.Touch(ctx, sess.ID, session.Origin{})
		touched <- err
	}()
	<-cache.entered

	if _, err := store.Terminate(ctx, sess.ID, "admin", session.ReasonLogout); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	close(cache.release)
	if err := <-touched; err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsActive || store.StatusOf(got) != session.StatusTerminated {
		t.Fatalf("terminated session read back as %s (active=%v)", store.StatusOf(got), got.IsActive)
	}
}

func TestCacheTTLNeverOutlivesSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store, _, clk := newStore(t, session.WithCache(session.NewRedisCache(rdb, "gs")))
	in := createInput()
	in.ExpiresAt = clk.Now().Add(10 * time.Minute)
	sess, err := store.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("gs:" + sess.ID); ttl != 10*time.Minute {
		t.Fatalf("cache ttl = %s", ttl)
	}
}

func TestCacheFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store, _, _ := newStore(t, session.WithCache(failingCache{}), session.WithLogger(zap.New(core)))
	ctx := context.Background()
	sess, err := store.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create with broken cache: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Fatalf("get should fall back to the repository: %v", err)
	}
	if logs.Len() == 0 {
		t.Fatal("cache failures should be logged")
	}
}

func TestFlagsThroughStore(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, createInput())

	got, changed, err := store.AddFlag(ctx, sess.ID, "suspicious-ip")
	if err != nil || !changed || !got.HasFlag("suspicious-ip") {
		t.Fatalf("add: %+v %v %v", got, changed, err)
	}
	got, changed, err = store.AddFlag(ctx, sess.ID, "suspicious-ip")
	if err != nil || changed || len(got.SecurityFlags) != 1 {
		t.Fatalf("second add: %+v %v %v", got, changed, err)
	}
	got, changed, err = store.RemoveFlag(ctx, sess.ID, "never-set")
	if err != nil || changed || len(got.SecurityFlags) != 1 {
		t.Fatalf("remove absent: %+v %v %v", got, changed, err)
	}
	if _, _, err := store.AddFlag(ctx, "missing", "x"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTerminateAllForUserKeepsCurrent(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()
	keep, _ := store.Create(ctx, createInput())
	_, _ = store.Create(ctx, createInput())
	_, _ = store.Create(ctx, createInput())

	done, err := store.TerminateAllForUser(ctx, "t1", "u1", keep.ID, "u1", "logout-everywhere")
	if err != nil || len(done) != 2 {
		t.Fatalf("terminated %d, %v", len(done), err)
	}
	if n, _ := store.CountActiveByUser(ctx, "t1", "u1"); n != 1 {
		t.Fatalf("active = %d", n)
	}
}

func TestConcurrentTouchesAndSweepResolveCleanly(t *testing.T) {
	store, _, clk := newStore(t)
	ctx := context.Background()
	in := createInput()
	in.ExpiresAt = clk.Now().Add(time.Minute)
	sess, _ := store.Create(ctx, in)
	clk.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Touch(ctx, sess.ID, session.Origin{})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.SweepExpired(ctx)
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, sess.ID)
	if got.IsActive || got.TerminationReason != session.ReasonExpired || !got.LastActivity.Equal(sess.LastActivity) {
		t.Fatalf("expected one clean terminal state, got %+v", got)
	}
}
