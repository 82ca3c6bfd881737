// Package common defines shared constants, sentinel errors and small helpers
// used across brainbox components. Callers should use errors.Is to match the
// error values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// Session errors. All of them surface to the remote caller as the same
	// undifferentiated 401.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthorized        = errors.New("unauthorized")

	// ErrNoToken is returned when a refresh is attempted without a refresh
	// token. It is a specialisation of ErrInvalidRefreshToken.
	ErrNoToken = fmt.Errorf("%w: no token", ErrInvalidRefreshToken)

	// ErrSigningConfiguration is fatal and only produced at startup.
	ErrSigningConfiguration = errors.New("signing secret is not configured")

	// Token codec diagnostics. Never exposed to the remote caller.
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedToken   = errors.New("malformed token")
)

// IsUnauthenticated reports whether err belongs to the 401 family.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrUnauthorized)
}
