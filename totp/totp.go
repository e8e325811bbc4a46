package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultSecretBytes is the amount of random key material behind a generated secret.
	DefaultSecretBytes = 32
	// Digits is the length of every generated code.
	Digits = 6
	// Period is the length of one time step.
	Period = 30 * time.Second
	// DefaultWindow is the number of steps tolerated on either side of "now".
	DefaultWindow = 1
)

var (
	// ErrInvalidSecret is returned when a secret is not valid base32 or too short.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrInvalidCode is returned when a candidate code is not exactly six digits.
	ErrInvalidCode = errors.New("invalid totp code format")
	// ErrRandomUnavailable is returned when the system random source fails.
	ErrRandomUnavailable = errors.New("random source unavailable")
)

var (
	paddedEncoding   = base32.StdEncoding
	unpaddedEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// GenerateSecret returns byteLength random bytes encoded as padded base32.
// A non-positive byteLength selects [DefaultSecretBytes].
func GenerateSecret(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultSecretBytes
	}
	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}
	return paddedEncoding.EncodeToString(raw), nil
}

// DecodeSecret turns a base32 secret into key bytes. Case, whitespace and
// trailing padding are tolerated; fewer than [MinSecretLength] significant
// characters is rejected.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(secret), ""))
	s = strings.TrimRight(s, "=")
	if len(s) < MinSecretLength {
		return nil, fmt.Errorf("%w: shorter than %d characters", ErrInvalidSecret, MinSecretLength)
	}
	key, err := unpaddedEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// TimeStep returns the 30-second step index containing t.
func TimeStep(t time.Time) int64 {
	return floorDiv(t.Unix(), int64(Period/time.Second))
}

// CodeAt derives the six-digit code for the given time step.
func CodeAt(secret string, step int64) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, step, Digits), nil
}

// Verify reports whether code matches any step in [now-window, now+window].
func Verify(secret, code string, window int, now time.Time) (bool, error) {
	ok, _, err := VerifyStep(secret, code, window, now)
	return ok, err
}

// VerifyStep is Verify that also returns the matched step, which callers use
// for replay protection.
func VerifyStep(secret, code string, window int, now time.Time) (bool, int64, error) {
	candidate := strings.TrimSpace(code)
	if !IsValidCode(candidate) {
		return false, 0, ErrInvalidCode
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		return false, 0, err
	}
	if window < 0 {
		window = 0
	}

	base := TimeStep(now)
	for offset := -window; offset <= window; offset++ {
		step := base + int64(offset)
		if step < 0 {
			continue
		}
		generated := hotp(key, step, Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(candidate)) == 1 {
			return true, step, nil
		}
	}
	return false, 0, nil
}

func hotp(key []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
