package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is one stored session.
type Record struct {
	Digest      string
	PrincipalID string
	Subject     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Active      bool
	RevokedAt   time.Time
	RoleVersion uint32
}

// ExpiredAt reports whether the session is past its expiry at now. A session
// whose expiry equals now is expired.
func (r *Record) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Digest returns the storage key component for token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
