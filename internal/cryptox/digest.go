// Package cryptox contains the one-way digest applied to refresh tokens
// before they reach storage.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the lowercase hex SHA-256 of token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ShortDigest is the first 8 characters of a digest, safe for log lines.
func ShortDigest(digest string) string {
	if len(digest) <= 8 {
		return digest
	}
	return digest[:8]
}
