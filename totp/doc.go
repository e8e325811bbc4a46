// Package totp implements the stateless one-time-password primitives used by
// the MFA state machine: shared-secret generation, RFC 4226 HOTP codes over
// RFC 6238 30-second time steps, drift-window verification, single-use backup
// codes, otpauth:// provisioning URIs, and optional at-rest sealing of secrets.
//
// # What this package must NOT do
//
//   - Hold per-user state, counters, or lockout information (see package mfa).
//   - Log or return a full secret anywhere other than the value it generated.
package totp
