package totp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// BackupCodeAlphabet is the character set backup codes are drawn from.
	BackupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// BackupCodeLength is the length of one backup code.
	BackupCodeLength = 8
	// DefaultBackupCodeCount is the size of a freshly generated batch.
	DefaultBackupCodeCount = 10
)

// RandomIndex returns a uniformly distributed integer in [0, max).
type RandomIndex func(max int) (int, error)

// GenerateBackupCodes returns count distinct codes. A non-positive count
// selects [DefaultBackupCodeCount].
func GenerateBackupCodes(count int) ([]string, error) {
	return GenerateBackupCodesWith(count, nil)
}

// GenerateBackupCodesWith is GenerateBackupCodes with an injectable random source.
func GenerateBackupCodesWith(count int, randomIndex RandomIndex) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	// A bounded number of redraws keeps a broken random source from looping forever.
	for attempts := 0; len(codes) < count; attempts++ {
		if attempts > count*8 {
			return nil, fmt.Errorf("%w: could not draw distinct backup codes", ErrRandomUnavailable)
		}
		code, err := newBackupCode(randomIndex)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode upper-cases a user-typed code and strips separators.
func NormalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// FormatBackupCode renders a code as two dash-separated halves for display.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func newBackupCode(randomIndex RandomIndex) (string, error) {
	var b strings.Builder
	b.Grow(BackupCodeLength)
	for i := 0; i < BackupCodeLength; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
		}
		if n < 0 || n >= len(BackupCodeAlphabet) {
			return "", fmt.Errorf("%w: index out of range", ErrRandomUnavailable)
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
