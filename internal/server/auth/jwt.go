// Package auth signs and verifies the compact HS256 tokens carried by
// sessions. It is stateless: everything a token asserts lives in its claims.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates access tokens from refresh tokens so neither can stand
// in for the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed claim set. Subject is the principal, ID (jti) is only
// set on refresh tokens.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Codec mints and checks tokens with one long-lived shared secret.
type Codec struct {
	secret []byte
	clock  timex.Clock
}

var signingMethod = jwt.SigningMethodHS256

// NewCodec fails with common.ErrSigningConfiguration when secret is empty.
func NewCodec(secret string, clock timex.Clock) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, common.ErrSigningConfiguration
	}
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &Codec{secret: []byte(secret), clock: clock}, nil
}

// Sign serializes claims and signs them.
func (c *Codec) Sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
}

// NewAccess signs an access token for subject valid for ttl from now.
func (c *Codec) NewAccess(subject string, ttl time.Duration) (string, *Claims, error) {
	return c.issue(KindAccess, subject, "", ttl)
}

// NewRefresh signs a refresh token for subject carrying the unique id.
func (c *Codec) NewRefresh(subject, id string, ttl time.Duration) (string, *Claims, error) {
	return c.issue(KindRefresh, subject, id, ttl)
}

func (c *Codec) issue(kind Kind, subject, id string, ttl time.Duration) (string, *Claims, error) {
	now := c.clock.Now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := c.Sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return token, claims, nil
}

// Verify parses token and checks its signature and expiry against the
// codec's clock. A token whose exp equals now is already expired.
//
// Errors are common.ErrInvalidSignature, common.ErrTokenExpired or
// common.ErrMalformedToken, wrapping the parser's reason.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrMalformedToken, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrMalformedToken)
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", common.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", common.ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %w", common.ErrMalformedToken, err)
	}
}
