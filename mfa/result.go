package mfa

import "time"

// Verification outcome reasons.
const (
	ReasonVerified          = "verified"
	ReasonInvalidCode       = "invalid_code"
	ReasonReplayedCode      = "replayed_code"
	ReasonLocked            = "locked"
	ReasonInvalidBackupCode = "invalid_backup_code"
	ReasonBackupCodeUsed    = "backup_code_used"
)

// VerifyResult reports the outcome of a verification attempt. Wrong codes and
// lockouts are expected traffic and are reported here, not as errors.
type VerifyResult struct {
	Success              bool          `json:"success"`
	Reason               string        `json:"reason"`
	FailedAttempts       int           `json:"failedAttempts"`
	RemainingAttempts    int           `json:"remainingAttempts"`
	LockedUntil          *time.Time    `json:"lockedUntil,omitempty"`
	LockRemaining        time.Duration `json:"lockRemaining,omitempty"`
	RemainingBackupCodes int           `json:"remainingBackupCodes"`
	// JustLocked is set on the attempt that triggered the lockout.
	JustLocked bool `json:"justLocked,omitempty"`
}

func lockedResult(rec *Record, policy Policy, now time.Time) VerifyResult {
	until := *rec.LockedUntil
	return VerifyResult{
		Reason:               ReasonLocked,
		FailedAttempts:       rec.FailedAttempts,
		RemainingAttempts:    remaining(rec, policy),
		LockedUntil:          &until,
		LockRemaining:        until.Sub(now),
		RemainingBackupCodes: len(rec.BackupCodes),
	}
}

func remaining(rec *Record, policy Policy) int {
	n := policy.MaxFailedAttempts - rec.FailedAttempts
	if n < 0 {
		return 0
	}
	return n
}
