package goGuard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/anomaly"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionRequest(ip, ua string) SessionRequest {
	return SessionRequest{
		Identity: testIdentity,
		Origin:   Origin{IPAddress: ip, UserAgent: ua},
	}
}

func TestCreateSessionResolvesDeviceAndLocation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" || sess.SessionToken == "" || !sess.IsActive {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sess.Location.City != "Madrid" || sess.Location.Country != "ES" {
		t.Fatalf("unexpected location %+v", sess.Location)
	}
	if sess.DeviceInfo.Browser != "Chrome" || sess.DeviceInfo.Fingerprint == "" {
		t.Fatalf("unexpected device info %+v", sess.DeviceInfo)
	}
	if got := sess.ExpiresAt.Sub(env.clock.Now()); got != 24*time.Hour {
		t.Fatalf("expected default ttl 24h, got %v", got)
	}
	if len(sess.SecurityFlags) != 0 {
		t.Fatalf("first session must not be flagged: %v", sess.SecurityFlags)
	}

	byToken, status, err := env.engine.GetSessionByToken(ctx, sess.SessionToken)
	if err != nil {
		t.Fatalf("GetSessionByToken: %v", err)
	}
	if byToken.ID != sess.ID || status != session.StatusActive {
		t.Fatalf("token lookup mismatch: %s %s", byToken.ID, status)
	}
	if env.countEvents(t, events.SessionCreated) != 1 {
		t.Fatalf("expected SESSION_CREATED event")
	}
}

func TestCreateSessionRejectsMissingIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.CreateSession(context.Background(), SessionRequest{Identity: Identity{UserID: "u"}}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestSessionExpiryAndSweep(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	req := newSessionRequest(ipMadrid, uaChrome)
	req.ExpiresAt = env.clock.Now().Add(time.Hour)
	sess, err := env.engine.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	_, status, err := env.engine.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if status != session.StatusExpired {
		t.Fatalf("expected expired before sweep, got %s", status)
	}
	if _, err := env.engine.TouchSession(ctx, sess.ID, Origin{IPAddress: ipMadrid}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	n, err := env.engine.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one swept session, got %d", n)
	}
	got, status, err := env.engine.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if status != session.StatusTerminated || got.IsActive {
		t.Fatalf("expected terminated after sweep, got %s", status)
	}
	if got.TerminationReason != session.ReasonExpired || got.TerminatedBy != "system" || got.TerminatedAt == nil {
		t.Fatalf("unexpected termination %q by %q", got.TerminationReason, got.TerminatedBy)
	}
	if n, _ := env.engine.SweepExpired(ctx); n != 0 {
		t.Fatalf("second sweep must change nothing, got %d", n)
	}
	if env.countEvents(t, events.SessionExpired) != 1 {
		t.Fatalf("expected one SESSION_EXPIRED event")
	}
	if v := env.engine.Metrics().Value(MetricSessionExpired); v != 1 {
		t.Fatalf("expected expired metric 1, got %d", v)
	}
}

func TestSessionExpiryWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newTestEnv(t, nil, func(b *Builder) { b.WithRedis(rdb) })
	ctx := context.Background()

	req := newSessionRequest(ipMadrid, uaChrome)
	req.ExpiresAt = env.clock.Now().Add(10 * time.Minute)
	sess, err := env.engine.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !mr.Exists("gs:" + sess.ID) {
		t.Fatalf("session must be cached")
	}

	env.clock.Advance(15 * time.Minute)
	mr.FastForward(15 * time.Minute)
	if mr.Exists("gs:" + sess.ID) {
		t.Fatalf("cache entry must not outlive the session")
	}

	if _, err := env.engine.SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	got, status, err := env.engine.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if status != session.StatusTerminated || got.TerminationReason != session.ReasonExpired {
		t.Fatalf("expected swept session from repository, got %s/%q", status, got.TerminationReason)
	}
}

func TestTouchSessionExtendsActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(20 * time.Minute)
	touched, err := env.engine.TouchSession(ctx, sess.ID, Origin{IPAddress: ipMadrid, UserAgent: uaChrome})
	if err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	if !touched.LastActivity.Equal(env.clock.Now()) {
		t.Fatalf("last activity not advanced: %v", touched.LastActivity)
	}

	env.clock.Advance(31 * time.Minute)
	if _, status, _ := env.engine.GetSession(ctx, sess.ID); status != session.StatusIdle {
		t.Fatalf("expected idle, got %s", status)
	}
}

func TestTerminateSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ended, err := env.engine.TerminateSession(ctx, sess.ID, "user", "")
	if err != nil {
		t.Fatalf("TerminateSession: %v", err)
	}
	if ended.IsActive || ended.TerminationReason != session.ReasonLogout || ended.TerminatedBy != "user" {
		t.Fatalf("unexpected terminated session %+v", ended)
	}
	if _, err := env.engine.TouchSession(ctx, sess.ID, Origin{}); !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
	if _, _, err := env.engine.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if env.countEvents(t, events.SessionTerminated) != 1 {
		t.Fatalf("expected SESSION_TERMINATED event")
	}
}

func TestTerminateAllSessionsKeepsCurrent(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Anomaly.EvaluateOnCreate = false })
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		ids = append(ids, sess.ID)
	}

	n, err := env.engine.TerminateAllSessions(ctx, testIdentity, ids[1], "admin", "password_reset")
	if err != nil {
		t.Fatalf("TerminateAllSessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 terminated, got %d", n)
	}
	active, err := env.engine.ListSessions(ctx, testIdentity, true)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(active) != 1 || active[0].ID != ids[1] {
		t.Fatalf("only the kept session may survive, got %d", len(active))
	}
	all, _ := env.engine.ListSessions(ctx, testIdentity, false)
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions in history, got %d", len(all))
	}
}

func TestSessionFlags(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := env.engine.AddSessionFlag(ctx, sess.ID, "manual-review"); err != nil {
			t.Fatalf("AddSessionFlag: %v", err)
		}
	}
	got, _, _ := env.engine.GetSession(ctx, sess.ID)
	if len(got.SecurityFlags) != 1 || !got.HasFlag("manual-review") {
		t.Fatalf("flags must be a set, got %v", got.SecurityFlags)
	}
	if env.countEvents(t, events.SessionFlagged) != 1 {
		t.Fatalf("expected one SESSION_FLAGGED event")
	}
	got, err = env.engine.RemoveSessionFlag(ctx, sess.ID, "manual-review")
	if err != nil {
		t.Fatalf("RemoveSessionFlag: %v", err)
	}
	if got.HasFlag("manual-review") {
		t.Fatalf("flag not removed")
	}
}

func TestImpossibleTravelFlagsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var mu sync.Mutex
	var alerts []events.Event
	env.engine.Subscribe(events.TopicAlert, func(_ context.Context, _ string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, payload.(events.Event))
	})

	first, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	second, err := env.engine.CreateSession(ctx, newSessionRequest(ipMoscow, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if !second.HasFlag(FlagImpossibleTravel) {
		t.Fatalf("expected impossible-travel flag, got %v", second.SecurityFlags)
	}
	if second.HasFlag(FlagNewDevice) {
		t.Fatalf("same browser must not count as a new device")
	}

	evs, err := env.engine.SecurityEvents(ctx, events.Query{Types: []events.Type{events.ImpossibleTravel}})
	if err != nil {
		t.Fatalf("SecurityEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected one IMPOSSIBLE_TRAVEL event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.SessionID != second.ID || ev.Details["otherSession"] != first.ID {
		t.Fatalf("event must reference both sessions: %+v", ev)
	}
	if d, _ := ev.Details["distanceKm"].(float64); d < 3000 || d > 4000 {
		t.Fatalf("unexpected distance %v", ev.Details["distanceKm"])
	}
	if ev.Severity != events.SeverityCritical {
		t.Fatalf("unexpected severity %s", ev.Severity)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 1 || alerts[0].Type != events.ImpossibleTravel {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if v := env.engine.Metrics().Value(MetricImpossibleTravel); v != 1 {
		t.Fatalf("expected impossible travel metric 1, got %d", v)
	}
}

func TestDistantLoginAfterLongGapIsNotFlagged(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(6 * time.Hour)
	second, err := env.engine.CreateSession(ctx, newSessionRequest(ipMoscow, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if second.HasFlag(FlagImpossibleTravel) {
		t.Fatalf("six hours is enough to cover the distance")
	}
}

func TestNewDeviceAndChurnFlags(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	screens := []string{"1920x1080", "390x844", "2560x1440"}
	var last *session.Session
	for i, screen := range screens {
		req := newSessionRequest(ipMadrid, uaChrome)
		req.Signals = &device.Signals{ScreenResolution: screen}
		sess, err := env.engine.CreateSession(ctx, req)
		if err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
		if i > 0 && !sess.HasFlag(FlagNewDevice) {
			t.Fatalf("session %d must be flagged as a new device", i)
		}
		last = sess
		env.clock.Advance(time.Minute)
	}
	if !last.HasFlag(FlagDeviceChurn) {
		t.Fatalf("three devices must trip churn, got %v", last.SecurityFlags)
	}
	if env.countEvents(t, events.DeviceChange) != 2 {
		t.Fatalf("expected two DEVICE_CHANGE events")
	}
	if env.countEvents(t, events.SuspiciousActivity) != 1 {
		t.Fatalf("expected one SUSPICIOUS_ACTIVITY event")
	}
}

func TestEvaluateSessionDedupWithGate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newTestEnv(t, nil, func(b *Builder) { b.WithRedis(rdb) })
	ctx := context.Background()

	if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	second, err := env.engine.CreateSession(ctx, newSessionRequest(ipMoscow, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	eval, err := env.engine.EvaluateSession(ctx, second.ID)
	if err != nil {
		t.Fatalf("EvaluateSession: %v", err)
	}
	if !eval.Travel.Suspicious {
		t.Fatalf("verdict must still be suspicious")
	}
	if len(eval.Flags) != 0 {
		t.Fatalf("repeat evaluation inside the window must raise nothing, got %v", eval.Flags)
	}
	if env.countEvents(t, events.ImpossibleTravel) != 1 {
		t.Fatalf("expected a single IMPOSSIBLE_TRAVEL event")
	}
}

// flakyRepository fails the next n updates.
type flakyRepository struct {
	session.Repository
	mu       sync.Mutex
	failNext int
}

func (r *flakyRepository) failUpdates(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

func (r *flakyRepository) Update(ctx context.Context, id string, fn session.UpdateFunc) (*session.Session, error) {
	r.mu.Lock()
	fail := r.failNext > 0
	if fail {
		r.failNext--
	}
	r.mu.Unlock()
	if fail {
		return nil, session.ErrStoreUnavailable
	}
	return r.Repository.Update(ctx, id, fn)
}

func TestFailedFlagWriteDoesNotSpendDedupSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := &flakyRepository{Repository: memory.NewSessionRepository()}
	env := newTestEnv(t, nil, func(b *Builder) {
		b.WithRedis(rdb).WithSessionRepository(repo)
	})
	ctx := context.Background()

	if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	repo.failUpdates(1)
	second, err := env.engine.CreateSession(ctx, newSessionRequest(ipMoscow, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if second.HasFlag(FlagImpossibleTravel) || env.countEvents(t, events.ImpossibleTravel) != 0 {
		t.Fatal("flag write failed, nothing should be raised")
	}

	eval, err := env.engine.EvaluateSession(ctx, second.ID)
	if err != nil {
		t.Fatalf("EvaluateSession: %v", err)
	}
	if len(eval.Flags) == 0 || eval.Flags[0] != FlagImpossibleTravel {
		t.Fatalf("retry inside the window must raise the flag, got %v", eval.Flags)
	}
	if env.countEvents(t, events.ImpossibleTravel) != 1 {
		t.Fatal("expected one IMPOSSIBLE_TRAVEL event after the retry")
	}
	got, _, err := env.engine.GetSession(ctx, second.ID)
	if err != nil || !got.HasFlag(FlagImpossibleTravel) {
		t.Fatalf("flag not persisted: %v", err)
	}
}

func TestEvaluateSessionWithoutGateRepeats(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	second, err := env.engine.CreateSession(ctx, newSessionRequest(ipMoscow, uaChrome))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	eval, err := env.engine.EvaluateSession(ctx, second.ID)
	if err != nil {
		t.Fatalf("EvaluateSession: %v", err)
	}
	if !eval.Suspicious() || eval.TravelRef == "" {
		t.Fatalf("expected suspicious evaluation, got %+v", eval)
	}
	if env.countEvents(t, events.ImpossibleTravel) != 2 {
		t.Fatalf("expected an event per evaluation")
	}
}

func TestSessionLimits(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Anomaly.MaxActiveSessionsPerUser = 2
		cfg.Anomaly.EvaluateOnCreate = false
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
	}
	_, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome))
	if !errors.Is(err, ErrSessionLimitExceeded) {
		t.Fatalf("expected ErrSessionLimitExceeded, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if le.Violation.Kind != anomaly.LimitActivePerUser || le.Violation.Current != 2 || le.Violation.Limit != 2 {
		t.Fatalf("unexpected violation %+v", le.Violation)
	}
	if env.countEvents(t, events.ConcurrentSessionLimit) != 1 {
		t.Fatalf("expected CONCURRENT_SESSION_LIMIT event")
	}

	if _, err := env.engine.TerminateAllSessions(ctx, testIdentity, "", "user", ""); err != nil {
		t.Fatalf("TerminateAllSessions: %v", err)
	}
	if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
		t.Fatalf("terminated sessions must free the ceiling: %v", err)
	}
}

func TestSessionLimitPerIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Anomaly.MaxActiveSessionsPerIP = 1
		cfg.Anomaly.EvaluateOnCreate = false
	})
	ctx := context.Background()

	if _, err := env.engine.CreateSession(ctx, newSessionRequest(ipMadrid, uaChrome)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	other := SessionRequest{Identity: Identity{UserID: "user-2", TenantID: "tenant-1"}, Origin: Origin{IPAddress: ipMadrid}}
	if _, err := env.engine.CreateSession(ctx, other); !errors.Is(err, ErrSessionLimitExceeded) {
		t.Fatalf("expected per-address ceiling, got %v", err)
	}
	if env.countEvents(t, events.RateLimitExceeded) != 1 {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED event")
	}
	other.Origin.IPAddress = ipMoscow
	if _, err := env.engine.CreateSession(ctx, other); err != nil {
		t.Fatalf("other address must be admitted: %v", err)
	}
}

func TestCheckSessionLimitsMissingIdentity(t *testing.T) {
	open := newTestEnv(t, func(cfg *Config) { cfg.Anomaly.MaxActiveSessionsPerUser = 1 })
	if err := open.engine.CheckSessionLimits(context.Background(), Identity{}, ipMadrid); err != nil {
		t.Fatalf("missing identity must be admitted by default, got %v", err)
	}

	closed := newTestEnv(t, func(cfg *Config) {
		cfg.Anomaly.MaxActiveSessionsPerUser = 1
		cfg.Anomaly.FailClosedOnMissingIdentity = true
	})
	if err := closed.engine.CheckSessionLimits(context.Background(), Identity{}, ipMadrid); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestStartSweeper(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Anomaly.EvaluateOnCreate = false })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := newSessionRequest(ipMadrid, uaChrome)
	req.ExpiresAt = env.clock.Now().Add(time.Minute)
	sess, err := env.engine.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	env.clock.Advance(2 * time.Minute)

	if !env.engine.StartSweeper(ctx, 10*time.Millisecond) {
		t.Fatalf("StartSweeper must start")
	}
	if env.engine.StartSweeper(ctx, 10*time.Millisecond) {
		t.Fatalf("second sweeper must be refused")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _, err := env.engine.GetSession(ctx, sess.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if !got.IsActive {
			if got.TerminationReason != session.ReasonExpired {
				t.Fatalf("unexpected reason %q", got.TerminationReason)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweeper did not expire the session")
}
