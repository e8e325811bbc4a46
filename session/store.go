package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/internal"
	"go.uber.org/zap"
)

// Config tunes a Store. Zero fields take the defaults shown.
type Config struct {
	DefaultTTL  time.Duration // 24h
	CacheTTL    time.Duration // 1h
	IdleTimeout time.Duration // 30m
	MaxActivity int           // 20
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.MaxActivity <= 0 {
		c.MaxActivity = 20
	}
	return c
}

// Origin identifies the network origin and client of a request.
type Origin struct {
	IPAddress string
	UserAgent string
}

// CreateInput describes a new session. DeviceInfo and Location are resolved
// from the origin when nil; ExpiresAt defaults to now plus the default TTL.
type CreateInput struct {
	UserID     string
	TenantID   string
	Origin     Origin
	Signals    *device.Signals
	DeviceInfo *device.Info
	Location   *device.Location
	ExpiresAt  time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithCache sets the advisory cache.
func WithCache(c Cache) Option { return func(s *Store) { s.cache = c } }

// WithLocator sets the geolocation provider used on Create.
func WithLocator(l device.Locator) Option { return func(s *Store) { s.locator = l } }

// WithPublisher sets the lifecycle notification sink.
func WithPublisher(p Publisher) Option { return func(s *Store) { s.pub = p } }

// WithLogger sets the logger for best-effort failures.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store is the dual-write session store.
type Store struct {
	repo    Repository
	cache   Cache
	locator device.Locator
	pub     Publisher
	logger  *zap.Logger
	now     func() time.Time
	cfg     Config
}

// NewStore returns a Store over repo.
func NewStore(repo Repository, cfg Config, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		cache:  NopCache{},
		logger: zap.NewNop(),
		now:    time.Now,
		cfg:    cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NopCache{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// IdleTimeout returns the configured idle threshold.
func (s *Store) IdleTimeout() time.Duration {
	return s.cfg.IdleTimeout
}

// StatusOf evaluates sess at the store's current time.
func (s *Store) StatusOf(sess *Session) Status {
	return sess.Status(s.now(), s.cfg.IdleTimeout)
}

// Create persists a new active session and mirrors it into the cache.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Session, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.TenantID) == "" {
		return nil, ErrInvalidInput
	}
	now := s.now()
	token, err := internal.NewSessionToken()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:            internal.NewID(),
		SessionToken:  token,
		UserID:        in.UserID,
		TenantID:      in.TenantID,
		IPAddress:     in.Origin.IPAddress,
		UserAgent:     in.Origin.UserAgent,
		CreatedAt:     now,
		LastActivity:  now,
		ExpiresAt:     in.ExpiresAt,
		IsActive:      true,
		SecurityFlags: []string{},
		Version:       1,
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = now.Add(s.cfg.DefaultTTL)
	}
	if !sess.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry not in the future", ErrInvalidInput)
	}

	if in.DeviceInfo != nil {
		sess.DeviceInfo = *in.DeviceInfo
	} else {
		sess.DeviceInfo = device.Describe(in.Origin.UserAgent, in.Signals)
	}
	if in.Location != nil {
		sess.Location = *in.Location
	} else {
		loc, err := device.Resolve(ctx, s.locator, in.Origin.IPAddress)
		if err != nil {
			s.logger.Warn("goGuard: location lookup failed",
				zap.String("user_id", in.UserID),
				zap.String("tenant_id", in.TenantID),
				zap.Error(err),
			)
		}
		sess.Location = loc
	}
	sess.appendActivity(Activity{
		Action:    ActivityCreated,
		At:        now,
		IPAddress: in.Origin.IPAddress,
		UserAgent: in.Origin.UserAgent,
	}, s.cfg.MaxActivity)

	if err := s.repo.Insert(ctx, sess); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, sess)
	s.publish(ctx, TopicCreated, sess)
	return sess.Clone(), nil
}

// Get reads through the cache, repopulating it from the repository on a miss.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logCache("get", id, err)
	}
	if cached != nil {
		return cached, nil
	}

	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, sess)
	return sess, nil
}

// GetByToken looks a session up by its opaque token.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.repo.FindByToken(ctx, token)
}

// Touch records activity. It fails with ErrTerminated or ErrExpired instead
// of extending a dead session.
func (s *Store) Touch(ctx context.Context, id string, origin Origin) (*Session, error) {
	sess, err := s.repo.Update(ctx, id, func(cur *Session) error {
		now := s.now()
		if !cur.IsActive {
			return ErrTerminated
		}
		if !now.Before(cur.ExpiresAt) {
			return ErrExpired
		}
		cur.LastActivity = now
		if origin.IPAddress != "" {
			cur.IPAddress = origin.IPAddress
		}
		if origin.UserAgent != "" {
			cur.UserAgent = origin.UserAgent
		}
		cur.appendActivity(Activity{
			Action:    ActivityTouched,
			At:        now,
			IPAddress: origin.IPAddress,
			UserAgent: origin.UserAgent,
		}, s.cfg.MaxActivity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, sess)
	s.publish(ctx, TopicTouched, sess)
	return sess, nil
}

// Terminate deactivates a session and evicts it from the cache. Terminating
// an already terminated session returns ErrTerminated and changes nothing.
func (s *Store) Terminate(ctx context.Context, id, by, reason string) (*Session, error) {
	sess, err := s.repo.Update(ctx, id, func(cur *Session) error {
		now := s.now()
		if !cur.Terminate(by, reason, now) {
			return ErrTerminated
		}
		cur.appendActivity(Activity{Action: ActivityTerminated, At: now}, s.cfg.MaxActivity)
		return nil
	})
	if errors.Is(err, ErrTerminated) {
		s.cacheDelete(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.cacheDelete(ctx, id)
	s.publish(ctx, TopicTerminated, sess)
	return sess, nil
}

// TerminateAllForUser terminates every active session of a user except
// keepID, returning the terminated sessions.
func (s *Store) TerminateAllForUser(ctx context.Context, tenantID, userID, keepID, by, reason string) ([]*Session, error) {
	active, err := s.repo.ListByUser(ctx, tenantID, userID, true)
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(active))
	for _, a := range active {
		if a.ID == keepID {
			continue
		}
		sess, err := s.Terminate(ctx, a.ID, by, reason)
		if errors.Is(err, ErrTerminated) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, sess)
	}
	return out, nil
}

var errUnchanged = errors.New("unchanged")

// AddFlag sets a security flag. Adding a present flag is a no-op.
func (s *Store) AddFlag(ctx context.Context, id, flag string) (*Session, bool, error) {
	return s.changeFlag(ctx, id, flag, (*Session).AddFlag)
}

// RemoveFlag clears a security flag. Removing an absent flag is a no-op.
func (s *Store) RemoveFlag(ctx context.Context, id, flag string) (*Session, bool, error) {
	return s.changeFlag(ctx, id, flag, (*Session).RemoveFlag)
}

func (s *Store) changeFlag(ctx context.Context, id, flag string, apply func(*Session, string) bool) (*Session, bool, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return nil, false, fmt.Errorf("%w: empty flag", ErrInvalidInput)
	}
	sess, err := s.repo.Update(ctx, id, func(cur *Session) error {
		if !apply(cur, flag) {
			return errUnchanged
		}
		return nil
	})
	changed := true
	if errors.Is(err, errUnchanged) {
		changed = false
		sess, err = s.repo.FindByID(ctx, id)
	}
	if err != nil {
		return nil, false, err
	}
	if sess.IsActive {
		s.cacheSet(ctx, sess)
	}
	return sess, changed, nil
}

// SweepExpired terminates every active session past its expiry. It is safe
// to run concurrently with itself and with Touch.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireActive(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, TopicExpired, n)
	}
	return n, nil
}

// ListForUser returns a user's sessions, optionally only active ones.
func (s *Store) ListForUser(ctx context.Context, tenantID, userID string, activeOnly bool) ([]*Session, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, activeOnly)
}

// CountActiveByUser counts a user's active sessions.
func (s *Store) CountActiveByUser(ctx context.Context, tenantID, userID string) (int64, error) {
	return s.repo.CountActiveByUser(ctx, tenantID, userID)
}

// CountByUser counts all of a user's sessions.
func (s *Store) CountByUser(ctx context.Context, tenantID, userID string) (int64, error) {
	return s.repo.CountByUser(ctx, tenantID, userID)
}

// CountActiveByIP counts active sessions from one address.
func (s *Store) CountActiveByIP(ctx context.Context, ip string) (int64, error) {
	return s.repo.CountActiveByIP(ctx, ip)
}

// Close releases the cache.
func (s *Store) Close() error {
	return s.cache.Close()
}

// cacheSet mirrors an active session with a TTL that ends no later than
// the session itself. After the write it re-reads the repository and evicts
// the entry if a newer version committed meanwhile, so a Set that lands
// after a concurrent Terminate's eviction cannot leave a stale copy behind.
func (s *Store) cacheSet(ctx context.Context, sess *Session) {
	if !sess.IsActive {
		return
	}
	ttl := s.cfg.CacheTTL
	if remaining := sess.ExpiresAt.Sub(s.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		s.cacheDelete(ctx, sess.ID)
		return
	}
	if err := s.cache.Set(ctx, sess, ttl); err != nil {
		s.logCache("set", sess.ID, err)
		return
	}
	cur, err := s.repo.FindByID(ctx, sess.ID)
	if err != nil || cur.Version != sess.Version || !cur.IsActive {
		s.cacheDelete(ctx, sess.ID)
	}
}

func (s *Store) cacheDelete(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logCache("delete", id, err)
	}
}

func (s *Store) logCache(op, id string, err error) {
	s.logger.Warn("goGuard: session cache "+op+" failed",
		zap.String("session_id", id),
		zap.Error(err),
	)
}

func (s *Store) publish(ctx context.Context, topic string, payload any) {
	if s.pub == nil {
		return
	}
	if sess, ok := payload.(*Session); ok {
		payload = sess.Clone()
	}
	s.pub.Publish(ctx, topic, payload)
}
