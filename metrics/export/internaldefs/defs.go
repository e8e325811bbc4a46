package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricMFASetup, Name: "goguard_mfa_setup_total", Help: "MFA records created."},
	{ID: goGuard.MetricMFAEnabled, Name: "goguard_mfa_enabled_total", Help: "MFA enable operations."},
	{ID: goGuard.MetricMFADisabled, Name: "goguard_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: goGuard.MetricMFAVerifySuccess, Name: "goguard_mfa_verify_success_total", Help: "Successful TOTP verifications."},
	{ID: goGuard.MetricMFAVerifyFailure, Name: "goguard_mfa_verify_failure_total", Help: "Failed TOTP verifications."},
	{ID: goGuard.MetricMFALocked, Name: "goguard_mfa_locked_total", Help: "Lockouts triggered by failed attempts."},
	{ID: goGuard.MetricMFALockedRejected, Name: "goguard_mfa_locked_rejected_total", Help: "Attempts refused while locked."},
	{ID: goGuard.MetricMFAUnlocked, Name: "goguard_mfa_unlocked_total", Help: "Manual unlocks."},
	{ID: goGuard.MetricMFARateLimited, Name: "goguard_mfa_rate_limited_total", Help: "Attempts refused by the per-address limiter."},
	{ID: goGuard.MetricBackupCodeUsed, Name: "goguard_backup_code_used_total", Help: "Redeemed backup codes."},
	{ID: goGuard.MetricBackupCodeFailed, Name: "goguard_backup_code_failed_total", Help: "Unknown backup codes presented."},
	{ID: goGuard.MetricBackupCodeReused, Name: "goguard_backup_code_reused_total", Help: "Consumed backup codes presented again."},
	{ID: goGuard.MetricBackupCodeRegenerated, Name: "goguard_backup_code_regenerated_total", Help: "Backup code regenerations."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Created sessions."},
	{ID: goGuard.MetricSessionTouched, Name: "goguard_session_touched_total", Help: "Session activity updates."},
	{ID: goGuard.MetricSessionTerminated, Name: "goguard_session_terminated_total", Help: "Explicitly terminated sessions."},
	{ID: goGuard.MetricSessionExpired, Name: "goguard_session_expired_total", Help: "Sessions terminated by the expiry sweep."},
	{ID: goGuard.MetricSessionLimitExceeded, Name: "goguard_session_limit_exceeded_total", Help: "Session creations refused by a ceiling."},
	{ID: goGuard.MetricAnomalyFlagged, Name: "goguard_anomaly_flagged_total", Help: "Security flags raised on sessions."},
	{ID: goGuard.MetricImpossibleTravel, Name: "goguard_impossible_travel_total", Help: "Impossible travel detections."},
	{ID: goGuard.MetricEventRecorded, Name: "goguard_event_recorded_total", Help: "Security events recorded."},
	{ID: goGuard.MetricEventEscalated, Name: "goguard_event_escalated_total", Help: "Security events published as alerts."},
	{ID: goGuard.MetricEventSuppressed, Name: "goguard_event_escalation_suppressed_total", Help: "Alerts dropped by the escalation limiter."},
	{ID: goGuard.MetricEventDropped, Name: "goguard_event_dropped_total", Help: "Security events dropped due to dispatcher backpressure."},
	{ID: goGuard.MetricEventPersistFailed, Name: "goguard_event_persist_failed_total", Help: "Security events the store failed to save."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricVerifyLatency, Name: "goguard_verify_latency_seconds", Help: "TOTP verification latency."},
}

// HistogramBounds are the upper bounds in seconds of the finite buckets.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names every bucket, +Inf included, for exporters
// that publish one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
