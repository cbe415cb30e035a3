package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

var hashSalt = "expense-be"

// SetHashSalt replaces the salt used by HashID.
func SetHashSalt(salt string) {
	if strings.TrimSpace(salt) != "" {
		hashSalt = salt
	}
}

// HashID returns a short pseudonymous tag for a user id so log lines can be
// correlated without exposing the id itself.
func HashID(id int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%s", id, hashSalt))
	return hex.EncodeToString(sum[:])[:8]
}

// Redact masks a client supplied identifier such as an email or username.
func Redact(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "<empty>"
	}
	if len(value) <= 4 {
		return fmt.Sprintf("<%d chars>", len(value))
	}
	return fmt.Sprintf("%s...<%d chars>", value[:2], len(value))
}
