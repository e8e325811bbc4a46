package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashHex returns the lowercase hex SHA-256 of v.
func HashHex(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
