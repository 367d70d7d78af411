package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

var testMigrations = fstest.MapFS{
	"0001_users.up.sql":      {Data: []byte("create table users (id text primary key);")},
	"0001_users.down.sql":    {Data: []byte("drop table users;")},
	"0002_profiles.up.sql":   {Data: []byte("create table profiles (id text primary key);\ncreate index idx_profiles on profiles (id);")},
	"0002_profiles.down.sql": {Data: []byte("drop table profiles;")},
}

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create table if not exists schema_seeds`).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesOnlyPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))

	// only 0002 is pending; both of its statements run in one transaction
	mock.ExpectBegin()
	mock.ExpectExec(`create table profiles`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create index idx_profiles`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_profiles.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(db, testMigrations, nil)
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`create table profiles`).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	m := NewManager(db, testMigrations, nil)
	if err := m.Up(context.Background()); err == nil {
		t.Fatal("expected migration failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownRollsBackLastApplied(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations order by applied_at asc`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_users.up.sql").
			AddRow("0002_profiles.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`drop table profiles`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`delete from schema_migrations where name = \$1`).
		WithArgs("0002_profiles.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(db, testMigrations, nil)
	if err := m.Down(context.Background()); err != nil {
		t.Fatalf("down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_migrations order by applied_at asc`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	m := NewManager(db, testMigrations, nil)
	if err := m.Down(context.Background()); err == nil {
		t.Fatal("expected error with no applied migrations")
	}
}

func TestSeedWithoutSeedsIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	m := NewManager(db, testMigrations, nil)
	if err := m.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSeedAppliesOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	seeds := fstest.MapFS{
		"departments.sql": {Data: []byte("insert into departments(name) values ('Cardiology');")},
	}

	expectEnsureTables(mock)
	mock.ExpectQuery(`select name from schema_seeds`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("departments.sql"))

	m := NewManager(db, testMigrations, seeds)
	if err := m.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`insert into t(v) values ('a;b');update t set v='x';`)
	if len(stmts) != 2 {
		t.Fatalf("got %d statements: %q", len(stmts), stmts)
	}
	if stmts[0] != `insert into t(v) values ('a;b');` {
		t.Fatalf("first statement split inside quotes: %q", stmts[0])
	}

	if got := splitStatements("  \n "); got != nil {
		t.Fatalf("whitespace input produced %q", got)
	}
}
