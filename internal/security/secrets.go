package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// oneTimeCodeBytes is the entropy of a one-time action code (e.g. password reset oobCode).
const oneTimeCodeBytes = 32

// HashSecret returns the hex-encoded SHA-256 of a bearer secret (refresh token, one-time code)
// so only the hash is stored.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretHashEqual compares the hash of provided with storedHash in constant time.
func SecretHashEqual(provided, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(provided)), []byte(storedHash)) == 1
}

// NewOneTimeCode returns a random URL-safe code suitable for a query parameter.
func NewOneTimeCode() (string, error) {
	b := make([]byte, oneTimeCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
