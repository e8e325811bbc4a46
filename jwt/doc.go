// Package jwt issues and verifies MFA assurance tokens: short-lived signed
// statements that an identity completed a second factor recently, so callers
// can gate sensitive actions without re-prompting.
package jwt
