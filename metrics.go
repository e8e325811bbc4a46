package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter.
type MetricID uint16

const (
	MetricMFASetup MetricID = iota
	MetricMFAEnabled
	MetricMFADisabled
	MetricMFAVerifySuccess
	MetricMFAVerifyFailure
	MetricMFALocked
	MetricMFALockedRejected
	MetricMFAUnlocked
	MetricMFARateLimited
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodeReused
	MetricBackupCodeRegenerated
	MetricSessionCreated
	MetricSessionTouched
	MetricSessionTerminated
	MetricSessionExpired
	MetricSessionLimitExceeded
	MetricAnomalyFlagged
	MetricImpossibleTravel
	MetricEventRecorded
	MetricEventEscalated
	MetricEventSuppressed
	MetricEventDropped
	MetricEventPersistFailed
	// MetricVerifyLatency is the only metric with a latency histogram.
	MetricVerifyLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricMFASetup:              "mfa_setup",
	MetricMFAEnabled:            "mfa_enabled",
	MetricMFADisabled:           "mfa_disabled",
	MetricMFAVerifySuccess:      "mfa_verify_success",
	MetricMFAVerifyFailure:      "mfa_verify_failure",
	MetricMFALocked:             "mfa_locked",
	MetricMFALockedRejected:     "mfa_locked_rejected",
	MetricMFAUnlocked:           "mfa_unlocked",
	MetricMFARateLimited:        "mfa_rate_limited",
	MetricBackupCodeUsed:        "backup_code_used",
	MetricBackupCodeFailed:      "backup_code_failed",
	MetricBackupCodeReused:      "backup_code_reused",
	MetricBackupCodeRegenerated: "backup_code_regenerated",
	MetricSessionCreated:        "session_created",
	MetricSessionTouched:        "session_touched",
	MetricSessionTerminated:     "session_terminated",
	MetricSessionExpired:        "session_expired",
	MetricSessionLimitExceeded:  "session_limit_exceeded",
	MetricAnomalyFlagged:        "anomaly_flagged",
	MetricImpossibleTravel:      "impossible_travel",
	MetricEventRecorded:         "event_recorded",
	MetricEventEscalated:        "event_escalated",
	MetricEventSuppressed:       "event_escalation_suppressed",
	MetricEventDropped:          "event_dropped",
	MetricEventPersistFailed:    "event_persist_failed",
	MetricVerifyLatency:         "verify_latency",
}

// String returns the snake_case metric name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every defined metric in order.
func MetricIDs() []MetricID {
	out := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		out = append(out, id)
	}
	return out
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters, one per cache line.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the latency histogram of id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricVerifyLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current value of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}
	return s
}

// LatencyBucketBounds returns the inclusive upper bound of each histogram
// bucket; the last bucket is unbounded.
func LatencyBucketBounds() []time.Duration {
	return []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
