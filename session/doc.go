// Package session provides the session record, its derived status, and a
// dual-write [Store] over a durable [Repository] and an advisory [Cache].
//
// # Consistency model
//
// The repository is authoritative and every mutation goes through its
// Update method, a per-record atomic read-modify-write. The cache mirrors
// live sessions with a TTL that never outlives the session itself; cache
// failures are logged and never returned. A terminated session is evicted
// from the cache in the same call that terminates it.
//
// # Architecture boundaries
//
// This package owns the [Session] model and the storage ports. It does NOT
// evaluate anomalies or record security events; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goGuard, mfa, or anomaly (no upward imports).
//   - Reactivate a session once IsActive is false.
package session
