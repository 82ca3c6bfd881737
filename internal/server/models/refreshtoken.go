// Package models defines server-side data models persisted in the database.
package models

import "time"

// RefreshToken is the persisted trace of an issued refresh token. Hash is the
// hex SHA-256 of the raw token; the raw value itself is never stored.
type RefreshToken struct {
	Hash      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is no longer usable at now. The boundary
// instant counts as expired.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
