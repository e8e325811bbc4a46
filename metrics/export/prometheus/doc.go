// Package prometheus exposes goGuard engine counters through a
// client_golang collector.
//
// [NewCollector] reads [goGuard.Engine.MetricsSnapshot] on every scrape.
// Counter names are prefixed goguard_*_total; the single histogram is
// goguard_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry; callers choose the registry.
//   - Mutate engine state.
package prometheus
