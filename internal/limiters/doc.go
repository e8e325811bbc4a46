// Package limiters provides Redis-backed fixed-window counters.
//
// # Limiters
//
//   - [AnomalyGate] lets one anomaly of a kind per session through per window.
//   - [AttemptLimiter] per-address throttle on MFA verification attempts.
//
// All limiters are nil-safe: a nil gate always admits and a nil limiter never limits.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling package.
//   - Make policy decisions beyond counting; the Engine decides consequences.
package limiters
