package goGuard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/store/memory"
	"github.com/MrEthical07/goGuard/totp"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	clock    *fakeClock
	records  *memory.MFAStore
	sessions *memory.SessionRepository
	events   *memory.EventStore
}

const (
	ipMadrid = "203.0.113.10"
	ipMoscow = "198.51.100.20"
	uaChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

var testIdentity = Identity{UserID: "user-1", TenantID: "tenant-1"}

func testLocator(t *testing.T) device.Locator {
	t.Helper()
	loc, err := device.NewStaticLocator(map[string]device.Location{
		"203.0.113.0/24":  device.At("ES", "Madrid", "Madrid", 40.4168, -3.7038, "Europe/Madrid"),
		"198.51.100.0/24": device.At("RU", "Moscow", "Moscow", 55.7558, 37.6173, "Europe/Moscow"),
	})
	if err != nil {
		t.Fatalf("NewStaticLocator: %v", err)
	}
	return loc
}

// newTestEnv builds an engine over in-memory stores with synchronous event
// delivery and a fake clock.
func newTestEnv(t *testing.T, mutate func(*Config), extra ...func(*Builder)) *testEnv {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Events.Async = false
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		clock:    newFakeClock(),
		records:  memory.NewMFAStore(),
		sessions: memory.NewSessionRepository(),
		events:   memory.NewEventStore(0),
	}
	b := New().
		WithConfig(cfg).
		WithRecordStore(env.records).
		WithSessionRepository(env.sessions).
		WithEventStore(env.events).
		WithLocator(testLocator(t)).
		WithClock(env.clock.Now)
	for _, fn := range extra {
		fn(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	env.engine = e
	return env
}

func (env *testEnv) setupEnabled(t *testing.T) *MFASetup {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.SetupMFA(ctx, testIdentity, "user@example.com", Origin{IPAddress: ipMadrid})
	if err != nil {
		t.Fatalf("SetupMFA: %v", err)
	}
	if _, err := env.engine.EnableMFA(ctx, testIdentity, Origin{IPAddress: ipMadrid}); err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}
	return setup
}

func (env *testEnv) countEvents(t *testing.T, typ events.Type) int {
	t.Helper()
	got, err := env.events.Query(context.Background(), events.Query{Types: []events.Type{typ}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return len(got)
}

func currentCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()
	code, err := totp.CodeAt(secret, totp.TimeStep(now))
	if err != nil {
		t.Fatalf("CodeAt: %v", err)
	}
	return code
}

// wrongCode returns a well-formed code that matches no step in the window.
func wrongCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()
	valid := map[string]bool{}
	step := totp.TimeStep(now)
	for d := int64(-1); d <= 1; d++ {
		c, err := totp.CodeAt(secret, step+d)
		if err != nil {
			t.Fatalf("CodeAt: %v", err)
		}
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatalf("no wrong code available")
	return ""
}
