package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/dbx"
	"github.com/dmitrijs2005/brainbox/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects placeholder syntax and error decoding. The values match
// the database/sql driver names.
type Dialect string

const (
	DialectPostgres Dialect = "pgx"
	DialectSQLite   Dialect = "sqlite"
)

const pgUniqueViolation = "23505"

// SQLRepository implements Repository over dbx.DBTX (satisfied by *sql.DB or
// *sql.Tx).
type SQLRepository struct {
	db      dbx.DBTX
	dialect Dialect
	now     func() time.Time
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, now: time.Now}
}

// Create inserts a record for hash with the given expiry.
func (r *SQLRepository) Create(ctx context.Context, hash string, expiresAt time.Time) (*models.RefreshToken, error) {
	rec := &models.RefreshToken{
		Hash:      hash,
		ExpiresAt: normalize(expiresAt),
		CreatedAt: normalize(r.now()),
	}
	if err := r.insert(ctx, r.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByHash looks a record up by digest. Absence is reported through found.
func (r *SQLRepository) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, bool, error) {
	query := `
		SELECT hash, expires_at, created_at
		FROM refresh_tokens
		WHERE hash = ?
	`
	rec := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, r.rebind(query), hash).Scan(&rec.Hash, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

// DeleteByHash removes a record by digest.
func (r *SQLRepository) DeleteByHash(ctx context.Context, hash string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE hash = ?
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(query), hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes every record whose expiry is at or before now.
func (r *SQLRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= ?
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), normalize(now))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Rotate replaces oldHash with next in one transaction. When the repository
// is already bound to a transaction the caller's transaction is used.
func (r *SQLRepository) Rotate(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return r.rotate(ctx, r.db, oldHash, next)
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return r.rotate(ctx, tx, oldHash, next)
	})
}

func (r *SQLRepository) rotate(ctx context.Context, db dbx.DBTX, oldHash string, next *models.RefreshToken) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE hash = ?
	`
	res, err := db.ExecContext(ctx, r.rebind(query), oldHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	rec := *next
	rec.ExpiresAt = normalize(rec.ExpiresAt)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.CreatedAt = normalize(rec.CreatedAt)
	return r.insert(ctx, db, &rec)
}

func (r *SQLRepository) insert(ctx context.Context, db dbx.DBTX, rec *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (hash, expires_at, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, r.rebind(query), rec.Hash, rec.ExpiresAt, rec.CreatedAt); err != nil {
		if r.isUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *SQLRepository) isUniqueViolation(err error) bool {
	switch r.dialect {
	case DialectPostgres:
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	case DialectSQLite:
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// normalize stores instants as whole UTC seconds so text comparison in
// SQLite agrees with time ordering.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
