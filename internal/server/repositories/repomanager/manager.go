package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/brainbox/internal/dbx"
	"github.com/dmitrijs2005/brainbox/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends repositories for one storage backend and owns its
// schema.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
