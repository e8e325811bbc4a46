package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

const resourceSession = "session"

// CreateSession records a login. Session ceilings are enforced first; when
// Anomaly.EvaluateOnCreate is set the new session is evaluated before it is
// returned, so any raised flags are visible on it.
func (e *Engine) CreateSession(ctx context.Context, req SessionRequest) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if !req.Identity.valid() {
		return nil, ErrInvalidIdentity
	}
	if err := e.CheckSessionLimits(ctx, req.Identity, req.Origin.IPAddress); err != nil {
		return nil, err
	}

	sess, err := e.sessions.Create(ctx, session.CreateInput{
		UserID:     req.Identity.UserID,
		TenantID:   req.Identity.TenantID,
		Origin:     req.Origin.session(),
		Signals:    req.Signals,
		DeviceInfo: req.DeviceInfo,
		Location:   req.Location,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return nil, classify(err)
	}

	e.metricInc(MetricSessionCreated)
	origin := req.Origin
	origin.SessionID = sess.ID
	ev := newEvent(events.SessionCreated, req.Identity, origin, resourceSession, session.ActivityCreated, events.OutcomeSuccess)
	ev.Details = map[string]any{
		"browser":    sess.DeviceInfo.Browser,
		"os":         sess.DeviceInfo.OS,
		"deviceType": sess.DeviceInfo.DeviceType,
		"country":    sess.Location.Country,
		"city":       sess.Location.City,
		"expiresAt":  sess.ExpiresAt,
	}
	e.record(ctx, ev)

	if !e.config.Anomaly.EvaluateOnCreate {
		return sess, nil
	}
	eval, err := e.EvaluateSession(ctx, sess.ID)
	if err != nil {
		e.logger.Warn("goGuard: session evaluation failed",
			zap.String("session_id", sess.ID),
			zap.String("user_id", sess.UserID),
			zap.String("tenant_id", sess.TenantID),
			zap.Error(err),
		)
		return sess, nil
	}
	if len(eval.Flags) > 0 {
		if fresh, err := e.sessions.Get(ctx, sess.ID); err == nil {
			return fresh, nil
		}
	}
	return sess, nil
}

// GetSession returns a session and its status at the engine's current time.
func (e *Engine) GetSession(ctx context.Context, id string) (*session.Session, session.Status, error) {
	if e == nil || e.sessions == nil {
		return nil, "", ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, "", classify(err)
	}
	return sess, e.sessions.StatusOf(sess), nil
}

// GetSessionByToken looks a session up by its opaque token.
func (e *Engine) GetSessionByToken(ctx context.Context, token string) (*session.Session, session.Status, error) {
	if e == nil || e.sessions == nil {
		return nil, "", ErrEngineNotReady
	}
	sess, err := e.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, "", classify(err)
	}
	return sess, e.sessions.StatusOf(sess), nil
}

// TouchSession records activity on a live session. Terminated and expired
// sessions fail with ErrSessionTerminated and ErrSessionExpired.
func (e *Engine) TouchSession(ctx context.Context, id string, origin Origin) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Touch(ctx, id, origin.session())
	if err != nil {
		return nil, classify(err)
	}
	e.metricInc(MetricSessionTouched)
	return sess, nil
}

// TerminateSession ends a session. by names the actor and reason is free text.
func (e *Engine) TerminateSession(ctx context.Context, id, by, reason string) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if reason == "" {
		reason = session.ReasonLogout
	}
	sess, err := e.sessions.Terminate(ctx, id, by, reason)
	if err != nil {
		return nil, classify(err)
	}
	e.recordTermination(ctx, sess)
	return sess, nil
}

// TerminateAllSessions ends every active session of id except keepID, which
// may be empty. It returns how many sessions were ended.
func (e *Engine) TerminateAllSessions(ctx context.Context, id Identity, keepID, by, reason string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	if !id.valid() {
		return 0, ErrInvalidIdentity
	}
	if reason == "" {
		reason = session.ReasonLogout
	}
	ended, err := e.sessions.TerminateAllForUser(ctx, id.TenantID, id.UserID, keepID, by, reason)
	for _, sess := range ended {
		e.recordTermination(ctx, sess)
	}
	if err != nil {
		return len(ended), classify(err)
	}
	return len(ended), nil
}

func (e *Engine) recordTermination(ctx context.Context, sess *session.Session) {
	e.metricInc(MetricSessionTerminated)
	ev := newEvent(events.SessionTerminated,
		Identity{UserID: sess.UserID, TenantID: sess.TenantID},
		Origin{IPAddress: sess.IPAddress, UserAgent: sess.UserAgent, SessionID: sess.ID},
		resourceSession, session.ActivityTerminated, events.OutcomeSuccess)
	ev.Details = map[string]any{
		"terminatedBy": sess.TerminatedBy,
		"reason":       sess.TerminationReason,
	}
	e.record(ctx, ev)
}

// AddSessionFlag sets a security flag on a session. Adding a flag that is
// already set changes nothing and records no event.
func (e *Engine) AddSessionFlag(ctx context.Context, id, flag string) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, changed, err := e.sessions.AddFlag(ctx, id, flag)
	if err != nil {
		return nil, classify(err)
	}
	if changed {
		ev := newEvent(events.SessionFlagged,
			Identity{UserID: sess.UserID, TenantID: sess.TenantID},
			Origin{IPAddress: sess.IPAddress, UserAgent: sess.UserAgent, SessionID: sess.ID},
			resourceSession, "add_flag", events.OutcomeFlagged)
		ev.Details = map[string]any{"flag": flag}
		e.record(ctx, ev)
	}
	return sess, nil
}

// RemoveSessionFlag clears a security flag. Removing an absent flag is a no-op.
func (e *Engine) RemoveSessionFlag(ctx context.Context, id, flag string) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, _, err := e.sessions.RemoveFlag(ctx, id, flag)
	if err != nil {
		return nil, classify(err)
	}
	return sess, nil
}

// ListSessions returns id's sessions, oldest first.
func (e *Engine) ListSessions(ctx context.Context, id Identity, activeOnly bool) ([]*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if !id.valid() {
		return nil, ErrInvalidIdentity
	}
	out, err := e.sessions.ListForUser(ctx, id.TenantID, id.UserID, activeOnly)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}
