package events

// Type classifies a security event.
type Type string

const (
	LoginSuccess           Type = "LOGIN_SUCCESS"
	LoginFailure           Type = "LOGIN_FAILURE"
	MFASetup               Type = "MFA_SETUP"
	MFAEnabled             Type = "MFA_ENABLED"
	MFADisabled            Type = "MFA_DISABLED"
	MFAVerifySuccess       Type = "MFA_VERIFY_SUCCESS"
	MFAVerifyFailure       Type = "MFA_VERIFY_FAILURE"
	MFALocked              Type = "MFA_LOCKED"
	MFAUnlocked            Type = "MFA_UNLOCKED"
	BackupCodeUsed         Type = "BACKUP_CODE_USED"
	BackupCodeFailure      Type = "BACKUP_CODE_FAILURE"
	BackupCodesRegenerated Type = "BACKUP_CODES_REGENERATED"
	SessionCreated         Type = "SESSION_CREATED"
	SessionTerminated      Type = "SESSION_TERMINATED"
	SessionExpired         Type = "SESSION_EXPIRED"
	SessionFlagged         Type = "SESSION_FLAGGED"
	SuspiciousActivity     Type = "SUSPICIOUS_ACTIVITY"
	ImpossibleTravel       Type = "IMPOSSIBLE_TRAVEL"
	DeviceChange           Type = "DEVICE_CHANGE"
	RateLimitExceeded      Type = "RATE_LIMIT_EXCEEDED"
	ConcurrentSessionLimit Type = "CONCURRENT_SESSION_LIMIT"
)

// Severity ranks events for escalation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severities = map[Type]Severity{
	LoginSuccess:           SeverityLow,
	LoginFailure:           SeverityMedium,
	MFASetup:               SeverityLow,
	MFAEnabled:             SeverityMedium,
	MFADisabled:            SeverityHigh,
	MFAVerifySuccess:       SeverityLow,
	MFAVerifyFailure:       SeverityMedium,
	MFALocked:              SeverityHigh,
	MFAUnlocked:            SeverityMedium,
	BackupCodeUsed:         SeverityMedium,
	BackupCodeFailure:      SeverityMedium,
	BackupCodesRegenerated: SeverityMedium,
	SessionCreated:         SeverityLow,
	SessionTerminated:      SeverityLow,
	SessionExpired:         SeverityLow,
	SessionFlagged:         SeverityMedium,
	SuspiciousActivity:     SeverityHigh,
	ImpossibleTravel:       SeverityCritical,
	DeviceChange:           SeverityMedium,
	RateLimitExceeded:      SeverityMedium,
	ConcurrentSessionLimit: SeverityMedium,
}

// SeverityOf returns the table severity of t, low for unknown types.
func SeverityOf(t Type) Severity {
	if s, ok := severities[t]; ok {
		return s
	}
	return SeverityLow
}

// Escalates reports whether s goes to the alert topic.
func (s Severity) Escalates() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Topics.
const (
	TopicAll   = "security_event"
	TopicAlert = "security_alert"
)

// TopicFor returns the type-specific topic.
func TopicFor(t Type) string {
	return TopicAll + ":" + string(t)
}
