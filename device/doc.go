// Package device derives a stable fingerprint from client signals and
// resolves a coarse location from a network address.
//
// Fingerprints are exact-match identifiers: two sessions are on the same
// device only when their fingerprints are byte-identical. Location lookup is
// pluggable through [Locator] and is always best-effort; callers get
// [UnknownLocation] rather than an error when an address cannot be resolved.
package device
