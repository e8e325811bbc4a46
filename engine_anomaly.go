package goGuard

import (
	"context"
	"math"
	"time"

	"github.com/MrEthical07/goGuard/anomaly"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

// CheckSessionLimits compares live session counts against the configured
// ceilings and returns a *LimitError for the first one reached. Requests
// without an identity are admitted unless FailClosedOnMissingIdentity is set.
func (e *Engine) CheckSessionLimits(ctx context.Context, id Identity, ip string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if e.limits.Unlimited() {
		return nil
	}
	if !id.valid() {
		if e.config.Anomaly.FailClosedOnMissingIdentity {
			return ErrInvalidIdentity
		}
		e.logger.Debug("goGuard: session limit check skipped without identity", zap.String("ip", ip))
		return nil
	}

	var counts anomaly.Counts
	var err error
	if e.limits.MaxActivePerUser > 0 {
		if counts.ActiveForUser, err = e.sessions.CountActiveByUser(ctx, id.TenantID, id.UserID); err != nil {
			return classify(err)
		}
	}
	if e.limits.MaxTotalPerUser > 0 {
		if counts.TotalForUser, err = e.sessions.CountByUser(ctx, id.TenantID, id.UserID); err != nil {
			return classify(err)
		}
	}
	if e.limits.MaxActivePerIP > 0 && ip != "" {
		if counts.ActiveForIP, err = e.sessions.CountActiveByIP(ctx, ip); err != nil {
			return classify(err)
		}
	}

	v := anomaly.CheckLimits(counts, e.limits)
	if v == nil {
		return nil
	}
	e.metricInc(MetricSessionLimitExceeded)
	typ := events.ConcurrentSessionLimit
	if v.Kind == anomaly.LimitActivePerIP {
		typ = events.RateLimitExceeded
	}
	ev := newEvent(typ, id, Origin{IPAddress: ip}, resourceSession, "create", events.OutcomeBlocked)
	ev.Details = map[string]any{
		"limit":   v.Kind,
		"ceiling": v.Limit,
		"current": v.Current,
	}
	e.record(ctx, ev)
	return &LimitError{Violation: *v}
}

// EvaluateSession runs the travel, churn and new-device heuristics for a
// session against the user's other sessions, sets the resulting flags on it
// and records the matching security events.
func (e *Engine) EvaluateSession(ctx context.Context, sessionID string) (*SessionEvaluation, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	all, err := e.sessions.ListForUser(ctx, sess.TenantID, sess.UserID, false)
	if err != nil {
		return nil, classify(err)
	}

	now := e.now()
	eval := &SessionEvaluation{SessionID: sess.ID}

	others := make([]*session.Session, 0, len(all))
	samples := make([]anomaly.SessionSample, 0, len(all))
	for _, o := range all {
		samples = append(samples, anomaly.SessionSample{
			Fingerprint: o.DeviceInfo.Fingerprint,
			CreatedAt:   o.CreatedAt,
			Active:      o.IsActive && o.Status(now, 0) != session.StatusExpired,
		})
		if o.ID != sess.ID {
			others = append(others, o)
		}
	}

	// travel
	here := sighting(sess.Location, sess.CreatedAt)
	for _, o := range others {
		v := anomaly.ImpossibleTravel(sighting(o.Location, o.LastActivity), here, e.travel)
		if worseTravel(v, eval.Travel) {
			eval.Travel = v
			eval.TravelRef = o.ID
		}
	}
	if eval.Travel.Suspicious {
		eval.Flags = append(eval.Flags, FlagImpossibleTravel)
	}

	// churn
	eval.Churn = anomaly.FingerprintChurn(samples, now, e.churn)
	if eval.Churn.TooManyDevices {
		eval.Flags = append(eval.Flags, FlagDeviceChurn)
	}
	if eval.Churn.RapidCreation {
		eval.Flags = append(eval.Flags, FlagRapidCreation)
	}

	// new device
	if len(others) > 0 && sess.DeviceInfo.Fingerprint != "" {
		eval.NewDevice = true
		for _, o := range others {
			if device.SameDevice(o.DeviceInfo.Fingerprint, sess.DeviceInfo.Fingerprint) {
				eval.NewDevice = false
				break
			}
		}
		if eval.NewDevice {
			eval.Flags = append(eval.Flags, FlagNewDevice)
		}
	}

	// The flag is persisted before the gate is consulted so a failed write
	// does not spend the de-dup slot.
	raised := eval.Flags[:0:0]
	for _, flag := range eval.Flags {
		if _, _, err := e.sessions.AddFlag(ctx, sess.ID, flag); err != nil {
			e.logger.Warn("goGuard: session flag failed",
				zap.String("session_id", sess.ID),
				zap.String("user_id", sess.UserID),
				zap.String("tenant_id", sess.TenantID),
				zap.Error(err),
			)
			continue
		}
		if !e.admitAnomaly(ctx, sess, flag) {
			continue
		}
		raised = append(raised, flag)
		e.recordAnomaly(ctx, sess, flag, eval)
	}
	eval.Flags = raised
	return eval, nil
}

// admitAnomaly de-duplicates one flag kind per session within the configured
// window. Gate failures admit.
func (e *Engine) admitAnomaly(ctx context.Context, sess *session.Session, kind string) bool {
	if e.gate == nil {
		return true
	}
	ok, err := e.gate.Admit(ctx, sess.ID, kind)
	if err != nil {
		e.logger.Warn("goGuard: anomaly gate unavailable",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return true
	}
	return ok
}

func (e *Engine) recordAnomaly(ctx context.Context, sess *session.Session, flag string, eval *SessionEvaluation) {
	id := Identity{UserID: sess.UserID, TenantID: sess.TenantID}
	origin := Origin{IPAddress: sess.IPAddress, UserAgent: sess.UserAgent, SessionID: sess.ID}

	var ev events.Event
	switch flag {
	case FlagImpossibleTravel:
		e.metricInc(MetricImpossibleTravel)
		ev = newEvent(events.ImpossibleTravel, id, origin, resourceSession, "evaluate", events.OutcomeFlagged)
		speed := eval.Travel.SpeedKmh
		if math.IsInf(speed, 1) {
			speed = -1
		}
		ev.Details = map[string]any{
			"distanceKm":   math.Round(eval.Travel.DistanceKm),
			"elapsed":      eval.Travel.Elapsed.String(),
			"speedKmh":     math.Round(speed),
			"rule":         eval.Travel.Reason,
			"otherSession": eval.TravelRef,
		}
	case FlagNewDevice:
		ev = newEvent(events.DeviceChange, id, origin, resourceSession, "evaluate", events.OutcomeFlagged)
		ev.Details = map[string]any{
			"browser": sess.DeviceInfo.Browser,
			"os":      sess.DeviceInfo.OS,
		}
	default:
		ev = newEvent(events.SuspiciousActivity, id, origin, resourceSession, "evaluate", events.OutcomeFlagged)
		ev.Details = map[string]any{
			"flag":                 flag,
			"distinctFingerprints": eval.Churn.DistinctFingerprints,
			"recentSessions":       eval.Churn.RecentSessions,
		}
	}
	e.metricInc(MetricAnomalyFlagged)
	e.record(ctx, ev)
}

func sighting(loc device.Location, at time.Time) anomaly.Sighting {
	lat, lon, ok := loc.Coordinates()
	return anomaly.Sighting{Point: anomaly.Point{Lat: lat, Lon: lon}, Known: ok, At: at}
}

func worseTravel(candidate, current anomaly.TravelVerdict) bool {
	if candidate.Suspicious != current.Suspicious {
		return candidate.Suspicious
	}
	return candidate.SpeedKmh > current.SpeedKmh
}
