package goGuard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/anomaly"
	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/totp"
	"go.uber.org/zap"
)

// Engine is the account-security engine. Build one with [New].
type Engine struct {
	config    Config
	records   mfa.Store
	sessions  *session.Store
	bus       *events.Bus
	pipeline  *events.Pipeline
	attempts  *limiters.AttemptLimiter
	gate      *limiters.AnomalyGate
	sealer    *totp.Sealer
	assurance *jwt.Manager
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time

	policy mfa.Policy
	travel anomaly.TravelThresholds
	churn  anomaly.ChurnThresholds
	limits anomaly.Limits

	sweeping  atomic.Bool
	sweepWG   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Close stops the sweeper, drains queued security events and releases the
// session cache.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.done)
		e.sweepWG.Wait()
		e.pipeline.Close()
		if err := e.sessions.Close(); err != nil {
			e.logger.Warn("goGuard: session cache close failed", zap.Error(err))
		}
	})
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Metrics returns the engine counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSignal(s events.Signal) {
	switch s {
	case events.SignalRecorded:
		e.metricInc(MetricEventRecorded)
	case events.SignalEscalated:
		e.metricInc(MetricEventEscalated)
	case events.SignalEscalationSuppressed:
		e.metricInc(MetricEventSuppressed)
	case events.SignalDropped:
		e.metricInc(MetricEventDropped)
	case events.SignalPersistFailed:
		e.metricInc(MetricEventPersistFailed)
	}
}

func newEvent(typ events.Type, id Identity, origin Origin, resource, action, outcome string) events.Event {
	return events.Event{
		Type:      typ,
		UserID:    id.UserID,
		TenantID:  id.TenantID,
		SessionID: origin.SessionID,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		Resource:  resource,
		Action:    action,
		Outcome:   outcome,
	}
}

func (e *Engine) record(ctx context.Context, ev events.Event) {
	e.pipeline.Record(ctx, ev)
}

func anomalyTravel(c AnomalyConfig) anomaly.TravelThresholds {
	return anomaly.TravelThresholds{
		MaxSpeedKmh:      c.MaxSpeedKmh,
		MaxDistanceKm:    c.MaxDistanceKm,
		MinElapsedForFar: c.FarDistanceWindow,
	}
}

func anomalyChurn(c AnomalyConfig) anomaly.ChurnThresholds {
	return anomaly.ChurnThresholds{
		MaxFingerprints:     c.MaxFingerprints,
		RapidWindow:         c.RapidWindow,
		MaxSessionsInWindow: c.MaxSessionsInWindow,
	}
}

func anomalyLimits(c AnomalyConfig) anomaly.Limits {
	return anomaly.Limits{
		MaxActivePerUser: c.MaxActiveSessionsPerUser,
		MaxTotalPerUser:  c.MaxTotalSessionsPerUser,
		MaxActivePerIP:   c.MaxActiveSessionsPerIP,
	}
}
