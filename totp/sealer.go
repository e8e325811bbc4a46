package totp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedPrefix marks a secret that was encrypted by a [Sealer].
const SealedPrefix = "sealed:v1:"

var (
	// ErrInvalidSealKey is returned when the sealing key is not 32 bytes.
	ErrInvalidSealKey = errors.New("totp seal key must be 32 bytes")
	// ErrSealedSecretCorrupt is returned when a sealed value fails authentication.
	ErrSealedSecretCorrupt = errors.New("sealed totp secret is corrupt")
)

// Sealer encrypts secrets at rest with XChaCha20-Poly1305. A nil *Sealer
// passes values through unchanged.
type Sealer struct {
	key []byte
}

// NewSealer returns a Sealer for a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidSealKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{key: k}, nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts plaintext. Values that are already sealed are returned as-is.
// The additional data binds the ciphertext to its owner so a sealed secret
// cannot be moved between records.
func (s *Sealer) Seal(plaintext, additionalData string) (string, error) {
	if s == nil || IsSealed(plaintext) {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(additionalData))
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Unsealed values are returned unchanged so records
// written before a key was configured keep working.
func (s *Sealer) Open(value, additionalData string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil {
		return "", ErrInvalidSealKey
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedSecretCorrupt, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrSealedSecretCorrupt
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(additionalData))
	if err != nil {
		return "", ErrSealedSecretCorrupt
	}
	return string(plain), nil
}
