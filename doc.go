// Package goGuard is the account-security engine: TOTP multi-factor
// authentication with backup-code recovery, session lifecycle management
// over a durable store and an advisory cache, device and location
// enrichment, anomaly heuristics and a security event pipeline.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config] and
// value types. The state machines live in the mfa and session packages as
// pure functions over records plus persistence ports; store/memory and
// store/mongo implement those ports.
//
// # Failure model
//
// Malformed input, missing records and state conflicts are returned as
// errors and can be classified with errors.Is against the sentinels in this
// package. Wrong codes and lockouts are ordinary results carried in
// [VerifyResult]. Cache, geolocation and event delivery failures are logged
// and never returned.
package goGuard
