package totp

import "regexp"

// MinSecretLength is the shortest accepted encoded secret.
const MinSecretLength = 16

var (
	secretPattern     = regexp.MustCompile(`^[A-Z2-7]+=*$`)
	codePattern       = regexp.MustCompile(`^[0-9]{6}$`)
	backupCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

// IsValidSecret reports whether s is an upper-case base32 secret of at least
// [MinSecretLength] characters.
func IsValidSecret(s string) bool {
	return len(s) >= MinSecretLength && secretPattern.MatchString(s)
}

// IsValidCode reports whether s is exactly six digits.
func IsValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// IsValidBackupCode reports whether s is exactly eight upper-case alphanumerics.
func IsValidBackupCode(s string) bool {
	return backupCodePattern.MatchString(s)
}
