package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/events"
	"go.uber.org/zap"
)

// SweepExpired terminates every active session past its expiry with reason
// "expired" and returns how many it changed. It is safe to run concurrently
// with itself and with session touches.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.SweepExpired(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if n > 0 {
		e.metrics.Add(MetricSessionExpired, uint64(n))
		ev := newEvent(events.SessionExpired, Identity{}, Origin{}, resourceSession, "sweep", events.OutcomeSuccess)
		ev.Details = map[string]any{"count": n}
		e.record(ctx, ev)
	}
	return n, nil
}

// StartSweeper runs SweepExpired every interval until ctx is cancelled or the
// engine is closed. A non-positive interval uses Session.SweepInterval. Only
// one sweeper runs per engine; it reports false if one is already running.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) bool {
	if e == nil || e.sessions == nil {
		return false
	}
	if interval <= 0 {
		interval = e.config.Session.SweepInterval
	}
	if interval <= 0 {
		return false
	}
	if !e.sweeping.CompareAndSwap(false, true) {
		return false
	}

	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		defer e.sweeping.Store(false)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case <-ticker.C:
				n, err := e.SweepExpired(ctx)
				if err != nil {
					e.logger.Warn("goGuard: expiry sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					e.logger.Info("goGuard: expired sessions swept", zap.Int64("count", n))
				}
			}
		}
	}()
	return true
}
