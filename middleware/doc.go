// Package middleware exposes net/http adapters over goGuard.Engine.
//
// # Guards
//
//   - [RequireSession] resolves the bearer session token, rejects terminated
//     and expired sessions, and records the request as session activity.
//   - [RequireAssurance] demands a fresh step-up token from a TOTP or
//     backup-code verification, bound to the session when one is present.
//
// # What this package must NOT do
//
//   - Make security decisions itself; every check is an Engine call.
//   - Touch the stores directly.
package middleware
