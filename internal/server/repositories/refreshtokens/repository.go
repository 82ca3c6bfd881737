// Package refreshtokens declares the server-side repository contract for
// refresh-token records and its SQL and in-memory implementations.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/server/models"
)

// Repository stores refresh tokens by digest. Implementations never see the
// raw token.
type Repository interface {
	// Create inserts a record for hash. A duplicate hash yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, hash string, expiresAt time.Time) (*models.RefreshToken, error)

	// FindByHash returns (record, true, nil) when present and (nil, false, nil)
	// when absent. Only storage failures are errors.
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, bool, error)

	// DeleteByHash removes the record for hash. Deleting an absent hash is not
	// an error.
	DeleteByHash(ctx context.Context, hash string) error

	// DeleteExpired removes records with expires_at <= now and reports how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Rotate atomically deletes oldHash and inserts next. If oldHash is already
	// gone nothing is inserted and common.ErrorNotFound is returned.
	Rotate(ctx context.Context, oldHash string, next *models.RefreshToken) error
}
