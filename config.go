package goGuard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. Start from [DefaultConfig] or
// [LoadConfig] and override what you need.
type Config struct {
	TOTP      TOTPConfig      `yaml:"totp"`
	MFA       MFAConfig       `yaml:"mfa"`
	Session   SessionConfig   `yaml:"session"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Events    EventsConfig    `yaml:"events"`
	Assurance AssuranceConfig `yaml:"assurance"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TOTPConfig controls secret generation and code verification.
type TOTPConfig struct {
	Issuer          string `yaml:"issuer"`
	SecretBytes     int    `yaml:"secretBytes"`
	Window          int    `yaml:"window"`
	BackupCodeCount int    `yaml:"backupCodeCount"`
	// SealKey, when 32 bytes, encrypts secrets at rest.
	SealKey []byte `yaml:"-"`
}

// MFAConfig controls the lockout policy and setup behaviour.
type MFAConfig struct {
	MaxFailedAttempts int           `yaml:"maxFailedAttempts"`
	LockoutDuration   time.Duration `yaml:"lockoutDuration"`
	ReplayProtection  bool          `yaml:"replayProtection"`
	// EnableOnSetup enables the record immediately after setup instead of
	// waiting for an explicit EnableMFA.
	EnableOnSetup bool `yaml:"enableOnSetup"`
	// AttemptsPerAddress caps verification attempts per network address per
	// AttemptWindow across all identities. Requires Redis; zero disables.
	AttemptsPerAddress int           `yaml:"attemptsPerAddress"`
	AttemptWindow      time.Duration `yaml:"attemptWindow"`
}

// SessionConfig controls session lifetimes and the cache.
type SessionConfig struct {
	DefaultTTL    time.Duration `yaml:"defaultTTL"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxActivity   int           `yaml:"maxActivity"`
	RedisPrefix   string        `yaml:"redisPrefix"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// AnomalyConfig controls the heuristics and session ceilings.
type AnomalyConfig struct {
	EvaluateOnCreate bool `yaml:"evaluateOnCreate"`

	MaxSpeedKmh       float64       `yaml:"maxSpeedKmh"`
	MaxDistanceKm     float64       `yaml:"maxDistanceKm"`
	FarDistanceWindow time.Duration `yaml:"farDistanceWindow"`

	MaxFingerprints     int           `yaml:"maxFingerprints"`
	RapidWindow         time.Duration `yaml:"rapidWindow"`
	MaxSessionsInWindow int           `yaml:"maxSessionsInWindow"`

	// Session ceilings; zero is unlimited.
	MaxActiveSessionsPerUser int `yaml:"maxActiveSessionsPerUser"`
	MaxTotalSessionsPerUser  int `yaml:"maxTotalSessionsPerUser"`
	MaxActiveSessionsPerIP   int `yaml:"maxActiveSessionsPerIP"`

	// FailClosedOnMissingIdentity rejects limit checks that carry no
	// identity. The default admits them.
	FailClosedOnMissingIdentity bool `yaml:"failClosedOnMissingIdentity"`

	// DedupWindow suppresses repeated detections of one kind per session.
	// Requires Redis.
	DedupWindow time.Duration `yaml:"dedupWindow"`
}

// EventsConfig controls the security event pipeline.
type EventsConfig struct {
	Async      bool `yaml:"async"`
	BufferSize int  `yaml:"bufferSize"`
	DropIfFull bool `yaml:"dropIfFull"`
	// EscalationsPerSecond throttles the alert topic; zero disables throttling.
	EscalationsPerSecond float64 `yaml:"escalationsPerSecond"`
	EscalationBurst      int     `yaml:"escalationBurst"`
}

// AssuranceConfig controls the step-up tokens issued after a successful
// verification.
type AssuranceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	SigningMethod string        `yaml:"signingMethod"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	KeyID         string        `yaml:"keyId"`
	PrivateKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enableLatencyHistograms"`
}

// DefaultConfig returns the defaults used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:          "goGuard",
			SecretBytes:     32,
			Window:          1,
			BackupCodeCount: 10,
		},
		MFA: MFAConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   30 * time.Minute,
			AttemptWindow:     time.Minute,
		},
		Session: SessionConfig{
			DefaultTTL:    24 * time.Hour,
			CacheTTL:      time.Hour,
			IdleTimeout:   30 * time.Minute,
			MaxActivity:   20,
			RedisPrefix:   "gs",
			SweepInterval: 5 * time.Minute,
		},
		Anomaly: AnomalyConfig{
			EvaluateOnCreate:    true,
			MaxSpeedKmh:         1000,
			MaxDistanceKm:       1000,
			FarDistanceWindow:   time.Hour,
			MaxFingerprints:     2,
			RapidWindow:         5 * time.Minute,
			MaxSessionsInWindow: 3,
			DedupWindow:         time.Hour,
		},
		Events: EventsConfig{
			Async:                true,
			BufferSize:           1024,
			DropIfFull:           true,
			EscalationsPerSecond: 10,
			EscalationBurst:      20,
		},
		Assurance: AssuranceConfig{
			TTL:           5 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "goGuard",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.TOTP.SealKey = cloneBytes(cfg.TOTP.SealKey)
	out.Assurance.PrivateKey = cloneBytes(cfg.Assurance.PrivateKey)
	out.Assurance.PublicKey = cloneBytes(cfg.Assurance.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cfg for values the engine cannot run with.
func (c *Config) Validate() error {
	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.SecretBytes < 10 {
		return errors.New("TOTP SecretBytes must be >= 10")
	}
	if c.TOTP.Window < 0 || c.TOTP.Window > 10 {
		return errors.New("TOTP Window must be between 0 and 10")
	}
	if c.TOTP.BackupCodeCount < 1 || c.TOTP.BackupCodeCount > 100 {
		return errors.New("TOTP BackupCodeCount must be between 1 and 100")
	}
	if len(c.TOTP.SealKey) != 0 && len(c.TOTP.SealKey) != 32 {
		return errors.New("TOTP SealKey must be 32 bytes")
	}

	// MFA
	if c.MFA.MaxFailedAttempts < 1 {
		return errors.New("MFA MaxFailedAttempts must be >= 1")
	}
	if c.MFA.LockoutDuration <= 0 {
		return errors.New("MFA LockoutDuration must be > 0")
	}
	if c.MFA.AttemptsPerAddress < 0 {
		return errors.New("MFA AttemptsPerAddress must be >= 0")
	}
	if c.MFA.AttemptsPerAddress > 0 && c.MFA.AttemptWindow <= 0 {
		return errors.New("MFA AttemptWindow must be > 0 when AttemptsPerAddress is set")
	}

	// Session
	if c.Session.DefaultTTL <= 0 {
		return errors.New("Session DefaultTTL must be > 0")
	}
	if c.Session.CacheTTL <= 0 {
		return errors.New("Session CacheTTL must be > 0")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.MaxActivity < 1 {
		return errors.New("Session MaxActivity must be >= 1")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}

	// Anomaly
	if c.Anomaly.MaxSpeedKmh <= 0 || c.Anomaly.MaxDistanceKm <= 0 || c.Anomaly.FarDistanceWindow <= 0 {
		return errors.New("Anomaly travel thresholds must be > 0")
	}
	if c.Anomaly.MaxFingerprints < 1 || c.Anomaly.MaxSessionsInWindow < 1 || c.Anomaly.RapidWindow <= 0 {
		return errors.New("Anomaly churn thresholds must be > 0")
	}
	if c.Anomaly.MaxActiveSessionsPerUser < 0 || c.Anomaly.MaxTotalSessionsPerUser < 0 || c.Anomaly.MaxActiveSessionsPerIP < 0 {
		return errors.New("Anomaly session ceilings must be >= 0")
	}

	// Events
	if c.Events.Async && c.Events.BufferSize < 1 {
		return errors.New("Events BufferSize must be >= 1 when Async is true")
	}
	if c.Events.EscalationsPerSecond < 0 {
		return errors.New("Events EscalationsPerSecond must be >= 0")
	}

	// Assurance
	if c.Assurance.Enabled {
		if c.Assurance.TTL <= 0 {
			return errors.New("Assurance TTL must be > 0")
		}
		switch c.Assurance.SigningMethod {
		case "hs256":
			if len(c.Assurance.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		case "ed25519":
			if len(c.Assurance.PrivateKey) == 0 || len(c.Assurance.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		default:
			return errors.New("unsupported Assurance signing method")
		}
	}
	return nil
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (skipped when it does not exist), then GOGUARD_*
// environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.TOTP.Issuer = envOrDefault("GOGUARD_TOTP_ISSUER", cfg.TOTP.Issuer)
	cfg.TOTP.Window = envInt("GOGUARD_TOTP_WINDOW", cfg.TOTP.Window)
	cfg.MFA.MaxFailedAttempts = envInt("GOGUARD_MFA_MAX_FAILED_ATTEMPTS", cfg.MFA.MaxFailedAttempts)
	cfg.MFA.LockoutDuration = envDuration("GOGUARD_MFA_LOCKOUT_DURATION", cfg.MFA.LockoutDuration)
	cfg.MFA.ReplayProtection = envBool("GOGUARD_MFA_REPLAY_PROTECTION", cfg.MFA.ReplayProtection)
	cfg.Session.DefaultTTL = envDuration("GOGUARD_SESSION_DEFAULT_TTL", cfg.Session.DefaultTTL)
	cfg.Session.IdleTimeout = envDuration("GOGUARD_SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)
	cfg.Session.SweepInterval = envDuration("GOGUARD_SESSION_SWEEP_INTERVAL", cfg.Session.SweepInterval)
	cfg.Session.RedisPrefix = envOrDefault("GOGUARD_SESSION_REDIS_PREFIX", cfg.Session.RedisPrefix)
	cfg.Anomaly.FailClosedOnMissingIdentity = envBool("GOGUARD_ANOMALY_FAIL_CLOSED", cfg.Anomaly.FailClosedOnMissingIdentity)
	cfg.Metrics.Enabled = envBool("GOGUARD_METRICS_ENABLED", cfg.Metrics.Enabled)

	if raw := os.Getenv("GOGUARD_TOTP_SEAL_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("decode GOGUARD_TOTP_SEAL_KEY: %w", err)
		}
		cfg.TOTP.SealKey = key
	}
	if raw := os.Getenv("GOGUARD_ASSURANCE_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("decode GOGUARD_ASSURANCE_KEY: %w", err)
		}
		cfg.Assurance.Enabled = true
		cfg.Assurance.SigningMethod = "hs256"
		cfg.Assurance.PrivateKey = key
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
