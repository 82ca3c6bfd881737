// Package repomanager wires repository constructors and goose migrations for
// the supported database drivers (pgx, sqlite) and an in-memory fallback.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/brainbox/internal/dbx"
	"github.com/dmitrijs2005/brainbox/internal/filex"
	"github.com/dmitrijs2005/brainbox/internal/server/migrations"
	"github.com/dmitrijs2005/brainbox/internal/server/repositories/refreshtokens"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open and New.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// SQLRepositoryManager vends SQL-backed repositories for one dialect and
// exposes a schema migration hook.
type SQLRepositoryManager struct {
	dialect refreshtokens.Dialect
}

// RefreshTokens returns a refreshtokens.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewSQLRepository(db, m.dialect)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.gooseDialect()); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

func (m *SQLRepositoryManager) gooseDialect() string {
	if m.dialect == refreshtokens.DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// MemoryRepositoryManager hands out one shared in-memory repository. It has
// no schema.
type MemoryRepositoryManager struct {
	refreshTokens *refreshtokens.MemoryRepository
}

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refreshTokens
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

// New returns the RepositoryManager for driver.
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case DriverPostgres:
		return &SQLRepositoryManager{dialect: refreshtokens.DialectPostgres}, nil
	case DriverSQLite:
		return &SQLRepositoryManager{dialect: refreshtokens.DialectSQLite}, nil
	case DriverMemory:
		return &MemoryRepositoryManager{refreshTokens: refreshtokens.NewMemoryRepository()}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open connects to dsn with driver and checks the connection. For a file
// backed SQLite DSN the parent directory is created first. The memory driver
// needs no connection and yields a nil *sql.DB.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverMemory:
		return nil, nil
	case DriverSQLite:
		if path, ok := sqliteFilePath(dsn); ok {
			if _, err := filex.EnsureParentDir(path); err != nil {
				return nil, fmt.Errorf("prepare sqlite dir: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// sqliteFilePath extracts the filesystem path of a SQLite DSN, reporting
// false for in-memory databases.
func sqliteFilePath(dsn string) (string, bool) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		if strings.Contains(path[i:], "mode=memory") {
			return "", false
		}
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return "", false
	}
	return path, true
}
