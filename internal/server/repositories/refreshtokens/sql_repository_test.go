package refreshtokens

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	expires  = fixedNow.Add(7 * 24 * time.Hour)
)

// timeArg matches a driver argument equal to want as an instant.
type timeArg struct{ want time.Time }

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(a.want)
}

func newRepoWithMock(t *testing.T, dialect Dialect) (*SQLRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo := NewSQLRepository(db, dialect)
	repo.now = func() time.Time { return fixedNow.Add(300 * time.Millisecond) }
	return repo, mock, db
}

const (
	insertPG    = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s+\(hash,\s*expires_at,\s*created_at\)\s+VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`
	insertLite  = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s+\(hash,\s*expires_at,\s*created_at\)\s+VALUES\s*\(\?,\s*\?,\s*\?\)\s*$`
	selectPG    = `(?s)^\s*SELECT\s+hash,\s*expires_at,\s*created_at\s+FROM\s+refresh_tokens\s+WHERE\s+hash\s*=\s*\$1\s*$`
	deletePG    = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+hash\s*=\s*\$1\s*$`
	deleteExpPG = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectExec(insertPG).
		WithArgs("h1", timeArg{expires}, timeArg{fixedNow}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := repo.Create(context.Background(), "h1", expires.Add(400*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Hash != "h1" || !rec.ExpiresAt.Equal(expires) || !rec.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_SQLitePlaceholders(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectSQLite)
	defer db.Close()

	mock.ExpectExec(insertLite).
		WithArgs("h1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := repo.Create(context.Background(), "h1", expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectExec(insertPG).
		WithArgs("h1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	_, err := repo.Create(context.Background(), "h1", expires)
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectExec(insertPG).
		WithArgs("h1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), "h1", expires)
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("plain db error must not look like a duplicate")
	}
}

func TestFindByHash_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"hash", "expires_at", "created_at"}).
		AddRow("h1", expires, fixedNow)

	mock.ExpectQuery(selectPG).
		WithArgs("h1").
		WillReturnRows(rows)

	got, found, err := repo.FindByHash(context.Background(), "h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found")
	}
	if got.Hash != "h1" || !got.ExpiresAt.Equal(expires) || !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestFindByHash_Absent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectQuery(selectPG).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, found, err := repo.FindByHash(context.Background(), "missing")
	if err != nil {
		t.Fatalf("absence must not be an error, got %v", err)
	}
	if found || got != nil {
		t.Fatalf("expected (nil, false), got (%+v, %v)", got, found)
	}
}

func TestFindByHash_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectQuery(selectPG).
		WithArgs("h1").
		WillReturnError(errors.New("db err"))

	_, _, err := repo.FindByHash(context.Background(), "h1")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteByHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectExec(deletePG).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deletePG).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	for i := 0; i < 2; i++ {
		if err := repo.DeleteByHash(context.Background(), "h1"); err != nil {
			t.Fatalf("delete #%d: unexpected error: %v", i+1, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteByHash_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectExec(deletePG).
		WithArgs("h1").
		WillReturnError(errors.New("db err"))

	err := repo.DeleteByHash(context.Background(), "h1")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectExec(deleteExpPG).
		WithArgs(timeArg{fixedNow}).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), fixedNow.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 removed, got %d", n)
	}
}

func TestRotate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(deletePG).
		WithArgs("old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertPG).
		WithArgs("new", timeArg{expires}, timeArg{fixedNow}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Rotate(context.Background(), "old", &models.RefreshToken{Hash: "new", ExpiresAt: expires})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotate_OldMissingRollsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(deletePG).
		WithArgs("old").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "old", &models.RefreshToken{Hash: "new", ExpiresAt: expires})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotate_InsertFailureRollsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, DialectPostgres)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(deletePG).
		WithArgs("old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertPG).
		WithArgs("new", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "old", &models.RefreshToken{Hash: "new", ExpiresAt: expires})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{dialect: DialectPostgres}
	lite := &SQLRepository{dialect: DialectSQLite}

	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	if got := pg.rebind(q); got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Fatalf("postgres rebind: %q", got)
	}
	if got := lite.rebind(q); got != q {
		t.Fatalf("sqlite rebind must be identity: %q", got)
	}
}
