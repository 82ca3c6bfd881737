package common

import (
	"encoding/base64"
	"io"
)

// MakeRandURLString reads size bytes from r and returns them encoded with
// unpadded URL-safe base64. r must be a cryptographically secure source such
// as crypto/rand.Reader.
//
// It returns an error if the source fails or delivers fewer than size bytes.
func MakeRandURLString(r io.Reader, size int) (string, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// This is useful for removing passwords from memory after use.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
