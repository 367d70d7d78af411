package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"medcare.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const (
	pgUniqueViolation = "23505"
	pgForeignKey      = "23503"
)

// translate maps driver errors onto package sentinels so handlers never
// inspect SQLSTATE codes.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKey:
			return ErrNotFound
		}
	}
	return err
}

const userColumns = `id, email, coalesce(phone, ''), coalesce(password_hash, ''), role,
	is_active, is_verified, coalesce(last_login_at, 'epoch'::timestamptz), created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsVerified, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *PGStore) CreateUser(ctx context.Context, u *User, p *Profile) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, email, phone, password_hash, role, is_active, is_verified)
		 values($1, $2, nullif($3, ''), nullif($4, ''), $5, $6, $7)`,
		u.ID, u.Email, u.Phone, u.PasswordHash, u.Role, u.IsActive, u.IsVerified,
	)
	if err != nil {
		return translate(err)
	}
	if p != nil {
		p.UserID = u.ID
		_, err = tx.ExecContext(ctx,
			`insert into user_profiles(user_id, first_name, last_name, date_of_birth, gender,
			   address, emergency_contact, specialization, license_number, department_id, hospital_id)
			 values($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''),nullif($7,''),nullif($8,''),nullif($9,''),
			   nullif($10,0), nullif($11,0))`,
			p.UserID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
			p.Address, p.EmergencyContact, p.Specialization, p.LicenseNumber,
			p.DepartmentID, p.HospitalID,
		)
		if err != nil {
			return translate(err)
		}
	}
	return tx.Commit()
}

func (s *PGStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *PGStore) FindUserByPhone(ctx context.Context, phone string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where phone=$1`, phone))
}

func (s *PGStore) FindProfile(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, first_name, last_name, coalesce(date_of_birth, ''), coalesce(gender, ''),
		   coalesce(address, ''), coalesce(emergency_contact, ''), coalesce(specialization, ''),
		   coalesce(license_number, ''), coalesce(department_id, 0), coalesce(hospital_id, 0)
		 from user_profiles where user_id=$1`, userID)
	var p Profile
	err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Address, &p.EmergencyContact, &p.Specialization, &p.LicenseNumber,
		&p.DepartmentID, &p.HospitalID)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *PGStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2 where id=$1`, userID, at.UTC())
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ResetPassword(ctx context.Context, userID, passwordHash, tokenID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`delete from verification_tokens where id=$1`, tokenID); err != nil {
		return translate(err)
	}
	return tx.Commit()
}

func (s *PGStore) MarkEmailVerified(ctx context.Context, userID, tokenID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// no updated_at bump: the watermark is reserved for password resets, and
	// verifying an email must not invalidate live sessions
	res, err := tx.ExecContext(ctx,
		`update users set is_verified=true where id=$1`, userID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`delete from verification_tokens where id=$1`, tokenID); err != nil {
		return translate(err)
	}
	return tx.Commit()
}

func (s *PGStore) CreateVerificationToken(ctx context.Context, tok *VerificationToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into verification_tokens(id, identifier, token, type, expires_at)
		 values($1,$2,$3,$4,$5)`,
		tok.ID, tok.Identifier, tok.Token, tok.Type, tok.ExpiresAt.UTC())
	return translate(err)
}

func (s *PGStore) FindVerificationToken(ctx context.Context, token string) (*VerificationToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identifier, token, type, expires_at, created_at
		 from verification_tokens where token=$1`, token)
	var tok VerificationToken
	err := row.Scan(&tok.ID, &tok.Identifier, &tok.Token, &tok.Type, &tok.ExpiresAt, &tok.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &tok, nil
}

func (s *PGStore) DeleteVerificationToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from verification_tokens where id=$1`, id)
	return translate(err)
}

func (s *PGStore) CreateRefreshSession(ctx context.Context, sess *RefreshSession) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_sessions(id, user_id, token_hash, expires_at, revoked)
		 values($1,$2,$3,$4,false)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt.UTC())
	return translate(err)
}

func (s *PGStore) FindRefreshSession(ctx context.Context, id string) (*RefreshSession, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, created_at, revoked
		 from refresh_sessions where id=$1`, id)
	var sess RefreshSession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt, &sess.Revoked)
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *PGStore) RevokeRefreshSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked=true where id=$1`, id)
	return translate(err)
}

func (s *PGStore) RevokeUserRefreshSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked=true where user_id=$1`, userID)
	return translate(err)
}
