package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/events"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/totp"
	"go.uber.org/zap"
)

const resourceMFA = "mfa"

// errLockedRejection aborts an update so a locked record is left untouched.
var errLockedRejection = errors.New("locked")

func secretAD(id Identity) string {
	return id.TenantID + ":" + id.UserID
}

// SetupMFA creates the MFA record of id and returns the secret, provisioning
// URI and backup codes. It fails with ErrMFAAlreadyExists when the identity
// already has a record.
func (e *Engine) SetupMFA(ctx context.Context, id Identity, email string, origin Origin) (*MFASetup, error) {
	if e == nil || e.records == nil {
		return nil, ErrEngineNotReady
	}
	if !id.valid() {
		return nil, ErrInvalidIdentity
	}
	if _, err := e.records.Get(ctx, id.UserID, id.TenantID); err == nil {
		return nil, ErrMFAAlreadyExists
	} else if !errors.Is(err, mfa.ErrNotFound) {
		return nil, classify(err)
	}

	secret, err := totp.GenerateSecret(e.config.TOTP.SecretBytes)
	if err != nil {
		return nil, err
	}
	codes, err := totp.GenerateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	stored, err := e.sealer.Seal(secret, secretAD(id))
	if err != nil {
		return nil, err
	}

	now := e.now()
	newRecord := mfa.NewRecord
	if e.config.MFA.EnableOnSetup {
		newRecord = mfa.NewEnabledRecord
	}
	rec := newRecord(internal.NewID(), id.UserID, id.TenantID, strings.TrimSpace(email), stored, codes, origin.mfa(), now)
	if err := e.records.Create(ctx, rec); err != nil {
		return nil, classify(err)
	}

	account := rec.Email
	if account == "" {
		account = id.UserID
	}
	e.metricInc(MetricMFASetup)
	ev := newEvent(events.MFASetup, id, origin, resourceMFA, mfa.ActionSetup, events.OutcomeSuccess)
	ev.Details = map[string]any{
		"secret":      totp.MaskSecret(secret),
		"backupCodes": len(codes),
		"enabled":     rec.IsEnabled,
	}
	e.record(ctx, ev)

	return &MFASetup{
		Secret:          secret,
		ProvisioningURI: totp.ProvisioningURI(secret, account, e.config.TOTP.Issuer),
		ManualEntryKey:  totp.ManualEntryKey(secret),
		MaskedSecret:    totp.MaskSecret(secret),
		BackupCodes:     codes,
		Enabled:         rec.IsEnabled,
	}, nil
}

// EnableMFA turns MFA on for id. Enabling twice is harmless.
func (e *Engine) EnableMFA(ctx context.Context, id Identity, origin Origin) (MFAStatus, error) {
	return e.toggle(ctx, id, origin, true)
}

// DisableMFA turns MFA off for id and clears its verification state.
func (e *Engine) DisableMFA(ctx context.Context, id Identity, origin Origin) (MFAStatus, error) {
	return e.toggle(ctx, id, origin, false)
}

func (e *Engine) toggle(ctx context.Context, id Identity, origin Origin, enable bool) (MFAStatus, error) {
	if e == nil || e.records == nil {
		return MFAStatus{}, ErrEngineNotReady
	}
	if !id.valid() {
		return MFAStatus{}, ErrInvalidIdentity
	}
	now := e.now()
	rec, err := e.records.Update(ctx, id.UserID, id.TenantID, func(rec *mfa.Record) error {
		if enable {
			mfa.Enable(rec, origin.mfa(), now)
		} else {
			mfa.Disable(rec, origin.mfa(), now)
		}
		return nil
	})
	if err != nil {
		return MFAStatus{}, classify(err)
	}

	typ, action, metric := events.MFAEnabled, mfa.ActionEnable, MetricMFAEnabled
	if !enable {
		typ, action, metric = events.MFADisabled, mfa.ActionDisable, MetricMFADisabled
	}
	e.metricInc(metric)
	e.record(ctx, newEvent(typ, id, origin, resourceMFA, action, events.OutcomeSuccess))
	return statusOf(rec, now), nil
}

// VerifyTOTP checks code against the identity's secret. Wrong codes and
// lockouts are reported in the result; errors are reserved for malformed
// codes, missing or disabled records and store failures.
func (e *Engine) VerifyTOTP(ctx context.Context, id Identity, code string, origin Origin) (*VerifyResult, error) {
	if e == nil || e.records == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()

	if !id.valid() {
		return nil, ErrInvalidIdentity
	}
	code = strings.TrimSpace(code)
	if !totp.IsValidCode(code) {
		return nil, ErrInvalidTOTPCode
	}
	if res, limited := e.checkAttemptBudget(ctx, id, origin, mfa.ActionVerifyTOTP); limited {
		return res, nil
	}

	now := e.now()
	var res mfa.VerifyResult
	_, err := e.records.Update(ctx, id.UserID, id.TenantID, func(rec *mfa.Record) error {
		locked, err := mfa.CheckAttemptable(rec, e.policy, now)
		if err != nil {
			return err
		}
		if locked != nil {
			res = *locked
			return errLockedRejection
		}
		secret, err := e.sealer.Open(rec.Secret, secretAD(id))
		if err != nil {
			return err
		}
		ok, step, err := totp.VerifyStep(secret, code, e.config.TOTP.Window, now)
		if err != nil {
			return err
		}
		res = mfa.ApplyTOTPAttempt(rec, ok, step, e.policy, origin.mfa(), now)
		return nil
	})
	if errors.Is(err, errLockedRejection) {
		e.rejectLocked(ctx, id, origin, mfa.ActionVerifyTOTP, res)
		return &VerifyResult{VerifyResult: res}, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	if !res.Success {
		e.metricInc(MetricMFAVerifyFailure)
		e.recordFailure(ctx, events.MFAVerifyFailure, id, origin, mfa.ActionVerifyTOTP, res)
		return &VerifyResult{VerifyResult: res}, nil
	}

	e.metricInc(MetricMFAVerifySuccess)
	e.record(ctx, newEvent(events.MFAVerifySuccess, id, origin, resourceMFA, mfa.ActionVerifyTOTP, events.OutcomeSuccess))
	return e.withAssurance(id, origin, jwt.AMRTOTP, res), nil
}

// UseBackupCode redeems a single-use recovery code. A code that was already
// consumed fails with ErrBackupCodeAlreadyUsed and changes nothing.
func (e *Engine) UseBackupCode(ctx context.Context, id Identity, code string, origin Origin) (*VerifyResult, error) {
	if e == nil || e.records == nil {
		return nil, ErrEngineNotReady
	}
	if !id.valid() {
		return nil, ErrInvalidIdentity
	}
	code = totp.NormalizeBackupCode(code)
	if !totp.IsValidBackupCode(code) {
		return nil, ErrInvalidBackupCode
	}
	if res, limited := e.checkAttemptBudget(ctx, id, origin, mfa.ActionUseBackupCode); limited {
		return res, nil
	}

	now := e.now()
	var res mfa.VerifyResult
	_, err := e.records.Update(ctx, id.UserID, id.TenantID, func(rec *mfa.Record) error {
		locked, err := mfa.CheckAttemptable(rec, e.policy, now)
		if err != nil {
			return err
		}
		if locked != nil {
			res = *locked
			return errLockedRejection
		}
		res, err = mfa.ApplyBackupCode(rec, code, e.policy, origin.mfa(), now)
		return err
	})
	switch {
	case errors.Is(err, errLockedRejection):
		e.rejectLocked(ctx, id, origin, mfa.ActionUseBackupCode, res)
		return &VerifyResult{VerifyResult: res}, nil
	case errors.Is(err, mfa.ErrBackupCodeAlreadyUsed):
		e.metricInc(MetricBackupCodeReused)
		e.recordFailure(ctx, events.BackupCodeFailure, id, origin, mfa.ActionUseBackupCode, res)
		return nil, ErrBackupCodeAlreadyUsed
	case err != nil:
		return nil, classify(err)
	}

	if !res.Success {
		e.metricInc(MetricBackupCodeFailed)
		e.recordFailure(ctx, events.BackupCodeFailure, id, origin, mfa.ActionUseBackupCode, res)
		return &VerifyResult{VerifyResult: res}, nil
	}

	e.metricInc(MetricBackupCodeUsed)
	ev := newEvent(events.BackupCodeUsed, id, origin, resourceMFA, mfa.ActionUseBackupCode, events.OutcomeSuccess)
	ev.Details = map[string]any{"remainingBackupCodes": res.RemainingBackupCodes}
	e.record(ctx, ev)
	return e.withAssurance(id, origin, jwt.AMRBackupCode, res), nil
}

// RegenerateBackupCodes replaces every backup code of id and returns the new
// batch. Previously issued codes, used or not, stop working.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, id Identity, reason string, origin Origin) ([]string, error) {
	if e == nil || e.records == nil {
		return nil, ErrEngineNotReady
	}
	if !id.valid() {
		return nil, ErrInvalidIdentity
	}
	codes, err := totp.GenerateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if _, err := e.records.Update(ctx, id.UserID, id.TenantID, func(rec *mfa.Record) error {
		mfa.RegenerateBackupCodes(rec, codes, reason, origin.mfa(), now)
		return nil
	}); err != nil {
		return nil, classify(err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	ev := newEvent(events.BackupCodesRegenerated, id, origin, resourceMFA, mfa.ActionRegenerate, events.OutcomeSuccess)
	ev.Details = map[string]any{"count": len(codes), "reason": reason}
	e.record(ctx, ev)
	return codes, nil
}

// UnlockMFA clears a lockout ahead of its expiry.
func (e *Engine) UnlockMFA(ctx context.Context, id Identity, origin Origin) (MFAStatus, error) {
	if e == nil || e.records == nil {
		return MFAStatus{}, ErrEngineNotReady
	}
	if !id.valid() {
		return MFAStatus{}, ErrInvalidIdentity
	}
	now := e.now()
	rec, err := e.records.Update(ctx, id.UserID, id.TenantID, func(rec *mfa.Record) error {
		mfa.Unlock(rec, origin.mfa(), now)
		return nil
	})
	if err != nil {
		return MFAStatus{}, classify(err)
	}
	e.metricInc(MetricMFAUnlocked)
	e.record(ctx, newEvent(events.MFAUnlocked, id, origin, resourceMFA, mfa.ActionUnlock, events.OutcomeSuccess))
	return statusOf(rec, now), nil
}

// GetMFAStatus returns the state of id's record.
func (e *Engine) GetMFAStatus(ctx context.Context, id Identity) (MFAStatus, error) {
	if e == nil || e.records == nil {
		return MFAStatus{}, ErrEngineNotReady
	}
	if !id.valid() {
		return MFAStatus{}, ErrInvalidIdentity
	}
	rec, err := e.records.Get(ctx, id.UserID, id.TenantID)
	if err != nil {
		return MFAStatus{}, classify(err)
	}
	return statusOf(rec, e.now()), nil
}

// MFAActivity returns the audit trail of id's record, oldest first.
func (e *Engine) MFAActivity(ctx context.Context, id Identity) ([]mfa.ActivityEntry, error) {
	if e == nil || e.records == nil {
		return nil, ErrEngineNotReady
	}
	if !id.valid() {
		return nil, ErrInvalidIdentity
	}
	rec, err := e.records.Get(ctx, id.UserID, id.TenantID)
	if err != nil {
		return nil, classify(err)
	}
	return append([]mfa.ActivityEntry(nil), rec.ActivityLog...), nil
}

// ValidateAssurance parses an assurance token issued after a successful
// verification.
func (e *Engine) ValidateAssurance(token string) (*jwt.AssuranceClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.assurance == nil {
		return nil, ErrAssuranceDisabled
	}
	claims, err := e.assurance.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssurance, err)
	}
	return claims, nil
}

// checkAttemptBudget applies the per-address limiter. Limiter outages admit
// the attempt.
func (e *Engine) checkAttemptBudget(ctx context.Context, id Identity, origin Origin, action string) (*VerifyResult, bool) {
	if e.attempts == nil {
		return nil, false
	}
	err := e.attempts.Hit(ctx, origin.IPAddress)
	switch {
	case err == nil:
		return nil, false
	case errors.Is(err, limiters.ErrAttemptsRateLimited):
		e.metricInc(MetricMFARateLimited)
		ev := newEvent(events.RateLimitExceeded, id, origin, resourceMFA, action, events.OutcomeBlocked)
		ev.Details = map[string]any{"limit": e.config.MFA.AttemptsPerAddress}
		e.record(ctx, ev)
		return &VerifyResult{VerifyResult: mfa.VerifyResult{Reason: ReasonRateLimited}}, true
	default:
		e.logger.Warn("goGuard: attempt limiter unavailable",
			zap.String("user_id", id.UserID),
			zap.String("tenant_id", id.TenantID),
			zap.Error(err),
		)
		return nil, false
	}
}

func (e *Engine) rejectLocked(ctx context.Context, id Identity, origin Origin, action string, res mfa.VerifyResult) {
	e.metricInc(MetricMFALockedRejected)
	ev := newEvent(events.MFAVerifyFailure, id, origin, resourceMFA, action, events.OutcomeBlocked)
	ev.Details = map[string]any{
		"reason":        res.Reason,
		"lockRemaining": res.LockRemaining.String(),
	}
	e.record(ctx, ev)
}

func (e *Engine) recordFailure(ctx context.Context, typ events.Type, id Identity, origin Origin, action string, res mfa.VerifyResult) {
	ev := newEvent(typ, id, origin, resourceMFA, action, events.OutcomeFailure)
	ev.Details = map[string]any{
		"reason":            res.Reason,
		"failedAttempts":    res.FailedAttempts,
		"remainingAttempts": res.RemainingAttempts,
	}
	e.record(ctx, ev)

	if res.JustLocked {
		e.metricInc(MetricMFALocked)
		locked := newEvent(events.MFALocked, id, origin, resourceMFA, action, events.OutcomeBlocked)
		locked.Details = map[string]any{"lockedUntil": res.LockedUntil}
		e.record(ctx, locked)
	}
}

func (e *Engine) withAssurance(id Identity, origin Origin, amr string, res mfa.VerifyResult) *VerifyResult {
	out := &VerifyResult{VerifyResult: res}
	if e.assurance == nil {
		return out
	}
	token, exp, err := e.assurance.Issue(id.UserID, id.TenantID, origin.SessionID, amr)
	if err != nil {
		e.logger.Warn("goGuard: assurance token issue failed",
			zap.String("user_id", id.UserID),
			zap.String("tenant_id", id.TenantID),
			zap.Error(err),
		)
		return out
	}
	out.AssuranceToken = token
	out.AssuranceExpiresAt = exp
	return out
}
