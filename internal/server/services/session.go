// Package services contains server-side business logic. This file implements
// SessionService, which verifies the operator's credentials and issues,
// refreshes, checks and revokes session tokens.
package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/cryptox"
	"github.com/dmitrijs2005/brainbox/internal/logging"
	"github.com/dmitrijs2005/brainbox/internal/server/auth"
	"github.com/dmitrijs2005/brainbox/internal/server/models"
	"github.com/dmitrijs2005/brainbox/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/brainbox/internal/timex"
)

// PasswordVerifier checks a password against a stored hash.
type PasswordVerifier interface {
	Verify(password, stored string) bool
}

// TokenCodec mints and verifies signed tokens.
type TokenCodec interface {
	NewAccess(subject string, ttl time.Duration) (string, *auth.Claims, error)
	NewRefresh(subject, id string, ttl time.Duration) (string, *auth.Claims, error)
	Verify(token string) (*auth.Claims, error)
}

// MinTokenTTL is the shortest accepted token lifetime. JWT expiry has
// whole-second precision, so anything shorter is expired when issued.
const MinTokenTTL = time.Second

// SessionConfig is the immutable policy of a SessionService.
type SessionConfig struct {
	// Username is the single principal.
	Username string
	// HashedPassword is an argon2id PHC string. Empty disables the password
	// gate: every login succeeds.
	HashedPassword string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	// RotateRefreshTokens replaces the refresh token on every refresh.
	RotateRefreshTokens bool
}

// SessionDeps are the collaborators of a SessionService. Clock, Rand and
// Logger are optional.
type SessionDeps struct {
	Hasher        PasswordVerifier
	Codec         TokenCodec
	RefreshTokens refreshtokens.Repository
	Clock         timex.Clock
	Rand          io.Reader
	Logger        logging.Logger
}

// LoginResult is what a successful login hands to the transport.
type LoginResult struct {
	RefreshToken     string
	RefreshExpiresAt time.Time
	AccessToken      string
	ExpiresIn        int64
}

// RefreshResult carries a fresh access token. RefreshToken is set only when
// rotation is on.
type RefreshResult struct {
	AccessToken      string
	ExpiresIn        int64
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionService runs the login, refresh, access check and logout flows.
type SessionService struct {
	cfg    SessionConfig
	hasher PasswordVerifier
	codec  TokenCodec
	repo   refreshtokens.Repository
	clock  timex.Clock
	rand   io.Reader
	logger logging.Logger
}

// NewSessionService validates cfg and wires deps.
func NewSessionService(deps SessionDeps, cfg SessionConfig) (*SessionService, error) {
	if deps.Hasher == nil || deps.Codec == nil || deps.RefreshTokens == nil {
		return nil, errors.New("session service: hasher, codec and refresh token repository are required")
	}
	if cfg.Username == "" {
		return nil, errors.New("session service: username is required")
	}
	if cfg.AccessTTL < MinTokenTTL || cfg.RefreshTTL < MinTokenTTL {
		return nil, fmt.Errorf("session service: token TTLs must be at least %s", MinTokenTTL)
	}

	s := &SessionService{
		cfg:    cfg,
		hasher: deps.Hasher,
		codec:  deps.Codec,
		repo:   deps.RefreshTokens,
		clock:  deps.Clock,
		rand:   deps.Rand,
		logger: deps.Logger,
	}
	if s.clock == nil {
		s.clock = timex.SystemClock{}
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("module", "session")
	return s, nil
}

// OpenMode reports whether the password gate is disabled.
func (s *SessionService) OpenMode() bool {
	return strings.TrimSpace(s.cfg.HashedPassword) == ""
}

// Login verifies the credentials and issues a refresh token (persisted as a
// digest) and an access token. Any mismatch yields common.ErrInvalidCredentials
// and nothing is stored.
func (s *SessionService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if !s.checkCredentials(username, password) {
		s.logger.Warn(ctx, "login rejected")
		return nil, common.ErrInvalidCredentials
	}

	raw, rec, err := s.createRefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	access, _, err := s.codec.NewAccess(s.cfg.Username, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "login succeeded", "refresh", cryptox.ShortDigest(rec.Hash))

	return &LoginResult{
		RefreshToken:     raw,
		RefreshExpiresAt: rec.ExpiresAt,
		AccessToken:      access,
		ExpiresIn:        s.expiresIn(),
	}, nil
}

// Refresh exchanges a stored, unexpired refresh token for a new access
// token. Without rotation the stored record is left untouched.
func (s *SessionService) Refresh(ctx context.Context, raw string) (*RefreshResult, error) {
	if raw == "" {
		return nil, common.ErrNoToken
	}

	digest := cryptox.Digest(raw)
	rec, found, err := s.repo.FindByHash(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: unknown", common.ErrInvalidRefreshToken)
	}
	if rec.Expired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: expired", common.ErrInvalidRefreshToken)
	}

	claims, err := s.codec.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidRefreshToken, err)
	}
	if claims.Kind != auth.KindRefresh {
		return nil, fmt.Errorf("%w: kind %q", common.ErrInvalidRefreshToken, claims.Kind)
	}
	if !s.isPrincipal(claims.Subject) {
		return nil, fmt.Errorf("%w: subject mismatch", common.ErrInvalidRefreshToken)
	}

	access, _, err := s.codec.NewAccess(s.cfg.Username, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	res := &RefreshResult{AccessToken: access, ExpiresIn: s.expiresIn()}

	if s.cfg.RotateRefreshTokens {
		nextRaw, next, err := s.mintRefreshToken()
		if err != nil {
			return nil, err
		}
		if err := s.repo.Rotate(ctx, digest, next); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				// lost a race with logout or a concurrent refresh
				return nil, fmt.Errorf("%w: already used", common.ErrInvalidRefreshToken)
			}
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
		res.RefreshToken = nextRaw
		res.RefreshExpiresAt = next.ExpiresAt
		s.logger.Debug(ctx, "refresh token rotated", "old", cryptox.ShortDigest(digest), "new", cryptox.ShortDigest(next.Hash))
	}

	return res, nil
}

// Authorize is the access check used as a gate by protected operations.
// Every failure is common.ErrUnauthorized wrapping the diagnostic cause.
func (s *SessionService) Authorize(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no token", common.ErrUnauthorized)
	}

	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if claims.Kind != auth.KindAccess {
		return nil, fmt.Errorf("%w: kind %q", common.ErrUnauthorized, claims.Kind)
	}
	if !s.isPrincipal(claims.Subject) {
		return nil, fmt.Errorf("%w: subject mismatch", common.ErrUnauthorized)
	}
	return claims, nil
}

// Logout revokes the refresh token. An empty or unknown token is a no-op.
func (s *SessionService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	digest := cryptox.Digest(raw)
	if err := s.repo.DeleteByHash(ctx, digest); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	s.logger.Info(ctx, "logout", "refresh", cryptox.ShortDigest(digest))
	return nil
}

// --- helpers below ---

// checkCredentials runs both comparisons whatever the first one returns.
func (s *SessionService) checkCredentials(username, password string) bool {
	if s.OpenMode() {
		return true
	}
	userOK := s.isPrincipal(username)
	passOK := s.hasher.Verify(password, s.cfg.HashedPassword)
	return userOK && passOK
}

func (s *SessionService) isPrincipal(name string) bool {
	return subtle.ConstantTimeCompare([]byte(name), []byte(s.cfg.Username)) == 1
}

func (s *SessionService) expiresIn() int64 {
	return int64(s.cfg.AccessTTL / time.Second)
}

// mintRefreshToken signs a refresh token with a fresh random id and returns
// it together with the record to persist.
func (s *SessionService) mintRefreshToken() (string, *models.RefreshToken, error) {
	id, err := common.MakeRandURLString(s.rand, common.RefreshTokenEntropyBytes)
	if err != nil {
		return "", nil, fmt.Errorf("%w: token id: %w", common.ErrorInternal, err)
	}

	raw, claims, err := s.codec.NewRefresh(s.cfg.Username, id, s.cfg.RefreshTTL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	return raw, &models.RefreshToken{
		Hash:      cryptox.Digest(raw),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		CreatedAt: s.clock.Now().UTC(),
	}, nil
}

// createRefreshToken mints and stores a refresh token. A digest collision is
// regenerated once.
func (s *SessionService) createRefreshToken(ctx context.Context) (string, *models.RefreshToken, error) {
	for attempt := 0; ; attempt++ {
		raw, rec, err := s.mintRefreshToken()
		if err != nil {
			return "", nil, err
		}

		stored, err := s.repo.Create(ctx, rec.Hash, rec.ExpiresAt)
		if err == nil {
			return raw, stored, nil
		}
		if !errors.Is(err, common.ErrorAlreadyExists) || attempt > 0 {
			return "", nil, fmt.Errorf("store refresh token: %w", err)
		}
		s.logger.Warn(ctx, "refresh token digest collision, regenerating")
	}
}

// SweepExpired deletes expired refresh-token records. Validity never depends
// on it.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "expired refresh tokens removed", "count", n)
	}
	return n, nil
}
