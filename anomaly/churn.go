package anomaly

import "time"

// SessionSample is the slice of a session the churn heuristic needs.
type SessionSample struct {
	Fingerprint string
	CreatedAt   time.Time
	Active      bool
}

// ChurnThresholds bound how many devices and logins are normal.
type ChurnThresholds struct {
	MaxFingerprints     int
	RapidWindow         time.Duration
	MaxSessionsInWindow int
}

// DefaultChurnThresholds returns 2 fingerprints, or 3 sessions per 5 minutes.
func DefaultChurnThresholds() ChurnThresholds {
	return ChurnThresholds{MaxFingerprints: 2, RapidWindow: 5 * time.Minute, MaxSessionsInWindow: 3}
}

// ChurnVerdict is the outcome of FingerprintChurn.
type ChurnVerdict struct {
	DistinctFingerprints int
	RecentSessions       int
	TooManyDevices       bool
	RapidCreation        bool
}

// Suspicious reports whether either rule fired.
func (v ChurnVerdict) Suspicious() bool {
	return v.TooManyDevices || v.RapidCreation
}

// FingerprintChurn counts distinct fingerprints across active sessions and
// sessions created in the trailing window ending at now.
func FingerprintChurn(sessions []SessionSample, now time.Time, th ChurnThresholds) ChurnVerdict {
	if th.MaxFingerprints <= 0 {
		th.MaxFingerprints = 2
	}
	if th.RapidWindow <= 0 {
		th.RapidWindow = 5 * time.Minute
	}
	if th.MaxSessionsInWindow <= 0 {
		th.MaxSessionsInWindow = 3
	}

	fps := make(map[string]struct{})
	cutoff := now.Add(-th.RapidWindow)
	var v ChurnVerdict
	for _, s := range sessions {
		if s.Active && s.Fingerprint != "" {
			fps[s.Fingerprint] = struct{}{}
		}
		if !s.CreatedAt.Before(cutoff) && !s.CreatedAt.After(now) {
			v.RecentSessions++
		}
	}
	v.DistinctFingerprints = len(fps)
	v.TooManyDevices = v.DistinctFingerprints > th.MaxFingerprints
	v.RapidCreation = v.RecentSessions > th.MaxSessionsInWindow
	return v
}
