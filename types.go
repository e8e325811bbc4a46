package goGuard

import (
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/anomaly"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/session"
)

// Identity names a user within a tenant.
type Identity struct {
	UserID   string
	TenantID string
}

func (i Identity) valid() bool {
	return strings.TrimSpace(i.UserID) != "" && strings.TrimSpace(i.TenantID) != ""
}

// Origin is the network origin and client signature of a request.
// SessionID, when set, names the session the request belongs to; it is
// recorded on events and bound into assurance tokens.
type Origin struct {
	IPAddress string
	UserAgent string
	SessionID string
}

func (o Origin) mfa() mfa.Origin {
	return mfa.Origin{IPAddress: o.IPAddress, UserAgent: o.UserAgent}
}

func (o Origin) session() session.Origin {
	return session.Origin{IPAddress: o.IPAddress, UserAgent: o.UserAgent}
}

// MFASetup is returned once by SetupMFA. BackupCodes are never shown again.
type MFASetup struct {
	Secret          string
	ProvisioningURI string
	ManualEntryKey  string
	// MaskedSecret is safe to log or display after setup.
	MaskedSecret string
	BackupCodes  []string
	Enabled      bool
}

// MFAStatus is the caller-facing view of an MFA record. It never carries the
// secret or the codes.
type MFAStatus struct {
	State                mfa.State
	IsEnabled            bool
	IsVerified           bool
	FailedAttempts       int
	LockedUntil          *time.Time
	RemainingBackupCodes int
	UsedBackupCodes      int
	VerifiedAt           *time.Time
	LastUsedAt           *time.Time
	EnabledAt            *time.Time
	DisabledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func statusOf(rec *mfa.Record, now time.Time) MFAStatus {
	st := MFAStatus{
		State:                mfa.StateOf(rec, now),
		IsEnabled:            rec.IsEnabled,
		IsVerified:           rec.IsVerified,
		FailedAttempts:       rec.FailedAttempts,
		RemainingBackupCodes: len(rec.BackupCodes),
		UsedBackupCodes:      len(rec.UsedBackupCodes),
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
	cp := rec.Clone()
	st.LockedUntil = cp.LockedUntil
	st.VerifiedAt = cp.VerifiedAt
	st.LastUsedAt = cp.LastUsedAt
	st.EnabledAt = cp.EnabledAt
	st.DisabledAt = cp.DisabledAt
	return st
}

// ReasonRateLimited is reported when the per-address attempt budget is spent.
const ReasonRateLimited = "rate_limited"

// VerifyResult is the outcome of VerifyTOTP or UseBackupCode.
type VerifyResult struct {
	mfa.VerifyResult
	// AssuranceToken is set on success when assurance tokens are enabled.
	AssuranceToken     string
	AssuranceExpiresAt time.Time
}

// SessionRequest describes a login to record. DeviceInfo and Location are
// derived from Origin when nil.
type SessionRequest struct {
	Identity   Identity
	Origin     Origin
	Signals    *device.Signals
	DeviceInfo *device.Info
	Location   *device.Location
	ExpiresAt  time.Time
}

// Security flags set by EvaluateSession.
const (
	FlagImpossibleTravel = "impossible-travel"
	FlagDeviceChurn      = "device-churn"
	FlagRapidCreation    = "rapid-session-creation"
	FlagNewDevice        = "new-device"
)

// SessionEvaluation is the outcome of EvaluateSession.
type SessionEvaluation struct {
	SessionID string
	// Flags lists the flags raised by this evaluation.
	Flags []string
	// Travel is the worst travel verdict against the user's other sessions.
	Travel    anomaly.TravelVerdict
	TravelRef string
	Churn     anomaly.ChurnVerdict
	NewDevice bool
}

// Suspicious reports whether any heuristic fired.
func (e SessionEvaluation) Suspicious() bool {
	return len(e.Flags) > 0 && !(len(e.Flags) == 1 && e.Flags[0] == FlagNewDevice)
}
