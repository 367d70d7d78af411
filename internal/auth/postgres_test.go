package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGStoreCreateUserAtomic(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "a@x.com", "", sqlmock.AnyArg(), "PATIENT", true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_profiles").
		WithArgs(sqlmock.AnyArg(), "Ada", "Lovelace", "", "", "", "", "", "", 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &User{Email: "a@x.com", PasswordHash: "hash", Role: RolePatient, IsActive: true}
	p := &Profile{FirstName: "Ada", LastName: "Lovelace"}
	if err := store.CreateUser(context.Background(), u, p); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected a generated user id")
	}
	if p.UserID != u.ID {
		t.Fatal("profile not bound to user id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreCreateUserDuplicateMapsToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectRollback()

	err := store.CreateUser(context.Background(),
		&User{Email: "a@x.com", Role: RolePatient}, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "email", "phone", "password_hash", "role",
		"is_active", "is_verified", "last_login_at", "created_at", "updated_at",
	}).AddRow("u-1", "a@x.com", "+15551234567", "hash", "PATIENT", true, false, now, now, now)
	mock.ExpectQuery("select (.+) from users where email").
		WithArgs("a@x.com").
		WillReturnRows(rows)

	u, err := store.FindUserByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if u.ID != "u-1" || u.Role != RolePatient || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("select (.+) from users where email").
		WithArgs("ghost@x.com").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindUserByEmail(context.Background(), "ghost@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreResetPasswordTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update users set password_hash").
		WithArgs("u-1", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from verification_tokens").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ResetPassword(context.Background(), "u-1", "newhash", "tok-1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// unknown user rolls back without touching the token
	mock.ExpectBegin()
	mock.ExpectExec("update users set password_hash").
		WithArgs("ghost", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.ResetPassword(context.Background(), "ghost", "newhash", "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRefreshSessionLifecycle(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into refresh_sessions").
		WithArgs("sess-1", "u-1", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.CreateRefreshSession(context.Background(), &RefreshSession{
		ID: "sess-1", UserID: "u-1", TokenHash: "hash", ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateRefreshSession: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked"}).
		AddRow("sess-1", "u-1", "hash", now.Add(time.Hour), now, false)
	mock.ExpectQuery("select (.+) from refresh_sessions where id").
		WithArgs("sess-1").
		WillReturnRows(rows)
	sess, err := store.FindRefreshSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FindRefreshSession: %v", err)
	}
	if sess.UserID != "u-1" || sess.Revoked {
		t.Fatalf("unexpected session: %+v", sess)
	}

	mock.ExpectExec("update refresh_sessions set revoked=true where id").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RevokeRefreshSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreMarkEmailVerifiedTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update users set is_verified=true").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from verification_tokens").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.MarkEmailVerified(context.Background(), "u-1", "tok-1"); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
