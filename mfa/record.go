package mfa

import "time"

// State is the derived lifecycle state of a record.
type State string

const (
	StateUninitialized State = "uninitialized"
	StatePending       State = "pending"
	StateActive        State = "active"
	StateLocked        State = "locked"
	StateDisabled      State = "disabled"
)

// Activity actions.
const (
	ActionSetup         = "setup"
	ActionEnable        = "enable"
	ActionDisable       = "disable"
	ActionVerifyTOTP    = "verify_totp"
	ActionUseBackupCode = "use_backup_code"
	ActionRegenerate    = "regenerate_backup_codes"
	ActionUnlock        = "unlock"
)

// Origin identifies where a request came from.
type Origin struct {
	IPAddress string `json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
}

// ActivityEntry is one append-only audit line on a record.
type ActivityEntry struct {
	ID        string    `json:"id" bson:"id"`
	Action    string    `json:"action" bson:"action"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	IPAddress string    `json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Success   bool      `json:"success" bson:"success"`
	Details   string    `json:"details,omitempty" bson:"details,omitempty"`
}

// Record is the MFA state of one (user, tenant) identity.
type Record struct {
	ID       string `json:"id" bson:"_id"`
	UserID   string `json:"userId" bson:"userId"`
	TenantID string `json:"tenantId" bson:"tenantId"`
	Email    string `json:"email,omitempty" bson:"email,omitempty"`

	// Secret is the base32 shared key, possibly sealed at rest.
	Secret string `json:"-" bson:"secret"`

	IsEnabled  bool `json:"isEnabled" bson:"isEnabled"`
	IsVerified bool `json:"isVerified" bson:"isVerified"`

	BackupCodes     []string `json:"-" bson:"backupCodes"`
	UsedBackupCodes []string `json:"-" bson:"usedBackupCodes"`

	FailedAttempts int        `json:"failedAttempts" bson:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty" bson:"lockedUntil,omitempty"`

	VerifiedAt *time.Time `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" bson:"lastUsedAt,omitempty"`
	EnabledAt  *time.Time `json:"enabledAt,omitempty" bson:"enabledAt,omitempty"`
	DisabledAt *time.Time `json:"disabledAt,omitempty" bson:"disabledAt,omitempty"`

	// LastUsedStep is the newest TOTP step accepted, for replay protection.
	LastUsedStep int64 `json:"-" bson:"lastUsedStep"`

	ActivityLog []ActivityEntry `json:"activityLog" bson:"activityLog"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// StateOf derives the lifecycle state of rec at now. A nil record is uninitialized.
func StateOf(rec *Record, now time.Time) State {
	if rec == nil {
		return StateUninitialized
	}
	if rec.IsLocked(now) {
		return StateLocked
	}
	if rec.IsEnabled {
		return StateActive
	}
	if rec.DisabledAt != nil {
		return StateDisabled
	}
	return StatePending
}

// IsLocked reports whether verification attempts are refused at now.
func (r *Record) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// HasUnusedBackupCode reports whether code is still redeemable.
func (r *Record) HasUnusedBackupCode(code string) bool {
	return indexOf(r.BackupCodes, code) >= 0
}

// HasUsedBackupCode reports whether code was already consumed.
func (r *Record) HasUsedBackupCode(code string) bool {
	return indexOf(r.UsedBackupCodes, code) >= 0
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.BackupCodes = append([]string(nil), r.BackupCodes...)
	out.UsedBackupCodes = append([]string(nil), r.UsedBackupCodes...)
	out.ActivityLog = append([]ActivityEntry(nil), r.ActivityLog...)
	out.LockedUntil = cloneTime(r.LockedUntil)
	out.VerifiedAt = cloneTime(r.VerifiedAt)
	out.LastUsedAt = cloneTime(r.LastUsedAt)
	out.EnabledAt = cloneTime(r.EnabledAt)
	out.DisabledAt = cloneTime(r.DisabledAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
