package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type subscriberSpec struct {
	topic   string
	handler events.Handler
}

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	records     mfa.Store
	sessionRepo session.Repository
	cache       session.Cache
	eventStore  events.Store
	locator     device.Locator

	logger      *zap.Logger
	now         func() time.Time
	subscribers []subscriberSpec

	built bool
}

// New returns a Builder carrying the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the Redis session cache, the per-address attempt
// limiter and anomaly de-duplication.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRecordStore sets the durable MFA record store. Required.
func (b *Builder) WithRecordStore(s mfa.Store) *Builder {
	b.records = s
	return b
}

// WithSessionRepository sets the durable session store. Required.
func (b *Builder) WithSessionRepository(r session.Repository) *Builder {
	b.sessionRepo = r
	return b
}

// WithSessionCache overrides the cache derived from WithRedis.
func (b *Builder) WithSessionCache(c session.Cache) *Builder {
	b.cache = c
	return b
}

// WithEventStore persists security events.
func (b *Builder) WithEventStore(s events.Store) *Builder {
	b.eventStore = s
	return b
}

// WithLocator sets the geolocation provider.
func (b *Builder) WithLocator(l device.Locator) *Builder {
	b.locator = l
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every time-based decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithSubscriber registers h on topic before the engine starts.
func (b *Builder) WithSubscriber(topic string, h events.Handler) *Builder {
	b.subscribers = append(b.subscribers, subscriberSpec{topic: topic, handler: h})
	return b
}

// WithSink registers s on the all-events topic.
func (b *Builder) WithSink(s events.Sink) *Builder {
	return b.WithSubscriber(events.TopicAll, events.SinkHandler(s))
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.records == nil {
		return nil, errors.New("mfa record store required")
	}
	if b.sessionRepo == nil {
		return nil, errors.New("session repository required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		config:  cfg,
		records: b.records,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
		policy: mfa.Policy{
			MaxFailedAttempts: cfg.MFA.MaxFailedAttempts,
			LockoutDuration:   cfg.MFA.LockoutDuration,
			ReplayProtection:  cfg.MFA.ReplayProtection,
		},
		travel: anomalyTravel(cfg.Anomaly),
		churn:  anomalyChurn(cfg.Anomaly),
		limits: anomalyLimits(cfg.Anomaly),
		done:   make(chan struct{}),
	}

	// -------- EVENTS --------
	e.bus = events.NewBus(logger)
	e.pipeline = events.NewPipeline(e.bus, events.PipelineConfig{
		Dispatcher: events.DispatcherConfig{
			Enabled:    cfg.Events.Async,
			BufferSize: cfg.Events.BufferSize,
			DropIfFull: cfg.Events.DropIfFull,
		},
		EscalationRate:  rate.Limit(cfg.Events.EscalationsPerSecond),
		EscalationBurst: cfg.Events.EscalationBurst,
		Store:           b.eventStore,
		Logger:          logger,
		Now:             now,
		Observe:         e.observeSignal,
	})
	for _, s := range b.subscribers {
		e.bus.Subscribe(s.topic, s.handler)
	}

	// -------- SESSION STORE --------
	cache := b.cache
	if cache == nil && b.redis != nil {
		cache = session.NewRedisCache(b.redis, cfg.Session.RedisPrefix)
	}
	opts := []session.Option{
		session.WithPublisher(e.bus),
		session.WithLogger(logger),
		session.WithClock(now),
	}
	if cache != nil {
		opts = append(opts, session.WithCache(cache))
	}
	if b.locator != nil {
		opts = append(opts, session.WithLocator(b.locator))
	}
	e.sessions = session.NewStore(b.sessionRepo, session.Config{
		DefaultTTL:  cfg.Session.DefaultTTL,
		CacheTTL:    cfg.Session.CacheTTL,
		IdleTimeout: cfg.Session.IdleTimeout,
		MaxActivity: cfg.Session.MaxActivity,
	}, opts...)

	// -------- REDIS LIMITERS --------
	if b.redis != nil {
		if cfg.MFA.AttemptsPerAddress > 0 {
			e.attempts = limiters.NewAttemptLimiter(b.redis, cfg.Session.RedisPrefix, limiters.AttemptLimiterConfig{
				MaxAttempts: cfg.MFA.AttemptsPerAddress,
				Window:      cfg.MFA.AttemptWindow,
			})
		}
		if cfg.Anomaly.DedupWindow > 0 {
			e.gate = limiters.NewAnomalyGate(b.redis, cfg.Session.RedisPrefix, cfg.Anomaly.DedupWindow)
		}
	}

	// -------- SECRETS AND TOKENS --------
	if len(cfg.TOTP.SealKey) > 0 {
		sealer, err := totp.NewSealer(cfg.TOTP.SealKey)
		if err != nil {
			return nil, err
		}
		e.sealer = sealer
	}
	if cfg.Assurance.Enabled {
		mgr, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Assurance.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Assurance.SigningMethod),
			PrivateKey:    cfg.Assurance.PrivateKey,
			PublicKey:     cfg.Assurance.PublicKey,
			Issuer:        cfg.Assurance.Issuer,
			Audience:      cfg.Assurance.Audience,
			KeyID:         cfg.Assurance.KeyID,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		e.assurance = mgr
	}

	b.built = true
	return e, nil
}
