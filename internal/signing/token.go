package signing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	tokenBytes        = 32 // 256 bits of entropy
	minExpirationDays = 1
	maxExpirationDays = 30
)

// IssueToken generates a bearer token for one invitation. The raw token is
// URL-safe base64 and leaves the process only inside the invitation email;
// the database keeps its SHA-256 hash. Expiry lands at end-of-day,
// expirationDays in the future.
func IssueToken(expirationDays int, now time.Time) (raw string, hash string, expiresAt time.Time, err error) {
	if expirationDays < minExpirationDays || expirationDays > maxExpirationDays {
		return "", "", time.Time{}, ErrInvalidExpiration
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	hash = HashToken(raw)

	day := now.AddDate(0, 0, expirationDays)
	expiresAt = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())

	return raw, hash, expiresAt, nil
}

// HashToken returns the hex SHA-256 of a raw bearer token
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenHashEqual compares two token hashes in constant time
func TokenHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
