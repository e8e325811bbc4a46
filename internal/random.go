package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionTokenBytes is the amount of random material behind a session token.
const SessionTokenBytes = 32

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewSessionToken returns an opaque base64url token (43 characters).
func NewSessionToken() (string, error) {
	var raw [SessionTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewID returns a random UUIDv4 string used for record identifiers.
func NewID() string {
	return uuid.NewString()
}

// NewSortableID returns a ULID stamped with t, sortable by creation time.
func NewSortableID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// EqualConstantTime compares two strings without leaking the position of
// the first difference.
func EqualConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
