package auth

import (
	"context"
	"time"
)

// Store describes persistence required by the auth subsystem. Multi-step
// writes (registration, password reset, email verification) are atomic inside
// the implementation.
type Store interface {
	// CreateUser inserts the user and profile in one transaction.
	CreateUser(ctx context.Context, u *User, p *Profile) error
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByPhone(ctx context.Context, phone string) (*User, error)
	FindProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// ResetPassword updates the hash, deletes the consumed token row and bumps
	// updated_at (the implicit invalidate-all-sessions signal) in one
	// transaction.
	ResetPassword(ctx context.Context, userID, passwordHash, tokenID string) error
	// MarkEmailVerified flips is_verified and deletes the consumed token row
	// in one transaction.
	MarkEmailVerified(ctx context.Context, userID, tokenID string) error

	CreateVerificationToken(ctx context.Context, tok *VerificationToken) error
	FindVerificationToken(ctx context.Context, token string) (*VerificationToken, error)
	DeleteVerificationToken(ctx context.Context, id string) error

	CreateRefreshSession(ctx context.Context, sess *RefreshSession) error
	FindRefreshSession(ctx context.Context, id string) (*RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, id string) error
	RevokeUserRefreshSessions(ctx context.Context, userID string) error
}
