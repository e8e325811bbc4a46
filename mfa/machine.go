package mfa

import (
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/internal"
)

// Policy holds the lockout parameters applied by the transitions.
type Policy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	// ReplayProtection rejects a TOTP code whose step is not newer than the
	// last accepted one.
	ReplayProtection bool
}

// DefaultPolicy returns 5 attempts and a 30 minute lockout.
func DefaultPolicy() Policy {
	return Policy{MaxFailedAttempts: 5, LockoutDuration: 30 * time.Minute}
}

func (p Policy) normalized() Policy {
	if p.MaxFailedAttempts <= 0 {
		p.MaxFailedAttempts = 5
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = 30 * time.Minute
	}
	return p
}

// NewRecord builds a pending record for a fresh setup.
func NewRecord(id, userID, tenantID, email, secret string, backupCodes []string, origin Origin, now time.Time) *Record {
	rec := &Record{
		ID:              id,
		UserID:          userID,
		TenantID:        tenantID,
		Email:           email,
		Secret:          secret,
		BackupCodes:     append([]string(nil), backupCodes...),
		UsedBackupCodes: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	appendActivity(rec, ActionSetup, origin, true, fmt.Sprintf("%d backup codes issued", len(backupCodes)), now)
	return rec
}

// NewEnabledRecord is NewRecord for setups that enable MFA immediately. The
// setup entry is the only activity entry and notes the enablement.
func NewEnabledRecord(id, userID, tenantID, email, secret string, backupCodes []string, origin Origin, now time.Time) *Record {
	rec := NewRecord(id, userID, tenantID, email, secret, backupCodes, origin, now)
	rec.IsEnabled = true
	rec.EnabledAt = timePtr(now)
	rec.ActivityLog[len(rec.ActivityLog)-1].Details += ", enabled"
	return rec
}

// Enable turns MFA on. Enabling an enabled record is a no-op apart from the
// activity entry.
func Enable(rec *Record, origin Origin, now time.Time) {
	if rec.IsEnabled {
		appendActivity(rec, ActionEnable, origin, true, "already enabled", now)
		return
	}
	rec.IsEnabled = true
	rec.EnabledAt = timePtr(now)
	rec.DisabledAt = nil
	appendActivity(rec, ActionEnable, origin, true, "", now)
}

// Disable turns MFA off and clears verification state.
func Disable(rec *Record, origin Origin, now time.Time) {
	if !rec.IsEnabled {
		appendActivity(rec, ActionDisable, origin, true, "already disabled", now)
		return
	}
	rec.IsEnabled = false
	rec.IsVerified = false
	rec.VerifiedAt = nil
	rec.DisabledAt = timePtr(now)
	appendActivity(rec, ActionDisable, origin, true, "", now)
}

// CheckAttemptable gates TOTP and backup-code attempts. A disabled record
// yields ErrNotEnabled. A locked record yields a locked result and must not
// be mutated. An expired lock is cleared so the identity starts over with a
// full set of attempts.
func CheckAttemptable(rec *Record, policy Policy, now time.Time) (*VerifyResult, error) {
	policy = policy.normalized()
	if !rec.IsEnabled {
		return nil, ErrNotEnabled
	}
	if rec.IsLocked(now) {
		res := lockedResult(rec, policy, now)
		return &res, nil
	}
	if rec.LockedUntil != nil {
		rec.LockedUntil = nil
		rec.FailedAttempts = 0
	}
	return nil, nil
}

// ApplyTOTPAttempt records the outcome of a TOTP check. matched says whether
// the code verified, step is the step it matched.
func ApplyTOTPAttempt(rec *Record, matched bool, step int64, policy Policy, origin Origin, now time.Time) VerifyResult {
	policy = policy.normalized()
	if matched && policy.ReplayProtection && rec.LastUsedStep != 0 && step <= rec.LastUsedStep {
		return fail(rec, ActionVerifyTOTP, ReasonReplayedCode, "code already used for this time step", policy, origin, now)
	}
	if !matched {
		return fail(rec, ActionVerifyTOTP, ReasonInvalidCode, "invalid code", policy, origin, now)
	}

	succeed(rec, now)
	if step > rec.LastUsedStep {
		rec.LastUsedStep = step
	}
	appendActivity(rec, ActionVerifyTOTP, origin, true, "", now)
	return VerifyResult{
		Success:              true,
		Reason:               ReasonVerified,
		RemainingAttempts:    policy.MaxFailedAttempts,
		RemainingBackupCodes: len(rec.BackupCodes),
	}
}

// ApplyBackupCode redeems code. An already consumed code returns
// ErrBackupCodeAlreadyUsed without touching the record; an unknown code counts
// as a failed attempt.
func ApplyBackupCode(rec *Record, code string, policy Policy, origin Origin, now time.Time) (VerifyResult, error) {
	policy = policy.normalized()
	if rec.HasUsedBackupCode(code) {
		return VerifyResult{
			Reason:               ReasonBackupCodeUsed,
			FailedAttempts:       rec.FailedAttempts,
			RemainingAttempts:    remaining(rec, policy),
			RemainingBackupCodes: len(rec.BackupCodes),
		}, ErrBackupCodeAlreadyUsed
	}

	idx := -1
	for i, c := range rec.BackupCodes {
		if internal.EqualConstantTime(c, code) {
			idx = i
		}
	}
	if idx < 0 {
		return fail(rec, ActionUseBackupCode, ReasonInvalidBackupCode, "invalid backup code", policy, origin, now), nil
	}

	rec.BackupCodes = append(rec.BackupCodes[:idx:idx], rec.BackupCodes[idx+1:]...)
	rec.UsedBackupCodes = append(rec.UsedBackupCodes, code)
	succeed(rec, now)
	appendActivity(rec, ActionUseBackupCode, origin, true,
		fmt.Sprintf("%d backup codes remaining", len(rec.BackupCodes)), now)

	return VerifyResult{
		Success:              true,
		Reason:               ReasonVerified,
		RemainingAttempts:    policy.MaxFailedAttempts,
		RemainingBackupCodes: len(rec.BackupCodes),
	}, nil
}

// RegenerateBackupCodes replaces the unused set and forgets the used set, so
// every previously issued code stops working.
func RegenerateBackupCodes(rec *Record, codes []string, reason string, origin Origin, now time.Time) {
	rec.BackupCodes = append([]string(nil), codes...)
	rec.UsedBackupCodes = []string{}
	details := fmt.Sprintf("%d backup codes issued", len(codes))
	if reason != "" {
		details += ": " + reason
	}
	appendActivity(rec, ActionRegenerate, origin, true, details, now)
}

// Unlock clears a lockout and the failure counter.
func Unlock(rec *Record, origin Origin, now time.Time) {
	rec.LockedUntil = nil
	rec.FailedAttempts = 0
	appendActivity(rec, ActionUnlock, origin, true, "", now)
}

func succeed(rec *Record, now time.Time) {
	rec.IsVerified = true
	rec.VerifiedAt = timePtr(now)
	rec.LastUsedAt = timePtr(now)
	rec.FailedAttempts = 0
	rec.LockedUntil = nil
}

func fail(rec *Record, action, reason, details string, policy Policy, origin Origin, now time.Time) VerifyResult {
	rec.FailedAttempts++
	res := VerifyResult{Reason: reason}
	if rec.FailedAttempts >= policy.MaxFailedAttempts {
		until := now.Add(policy.LockoutDuration)
		rec.LockedUntil = &until
		res.LockedUntil = timePtr(until)
		res.LockRemaining = policy.LockoutDuration
		res.JustLocked = true
		details += "; locked"
	}
	appendActivity(rec, action, origin, false, details, now)

	res.FailedAttempts = rec.FailedAttempts
	res.RemainingAttempts = remaining(rec, policy)
	res.RemainingBackupCodes = len(rec.BackupCodes)
	return res
}

func appendActivity(rec *Record, action string, origin Origin, success bool, details string, now time.Time) {
	rec.ActivityLog = append(rec.ActivityLog, ActivityEntry{
		ID:        internal.NewSortableID(now),
		Action:    action,
		Timestamp: now,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		Success:   success,
		Details:   details,
	})
	rec.UpdatedAt = now
}

func timePtr(t time.Time) *time.Time {
	return &t
}
