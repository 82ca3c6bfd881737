package common

const (
	// AuthorizationHeaderName carries the bearer access token.
	AuthorizationHeaderName = "Authorization"

	// RefreshTokenCookieName is the cookie that transports the raw refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RequestIDHeaderName echoes the per-request identifier.
	RequestIDHeaderName = "X-Request-ID"

	// RefreshTokenEntropyBytes is the number of random bytes behind every
	// refresh token identifier.
	RefreshTokenEntropyBytes = 32
)
