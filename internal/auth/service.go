package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medcare.org/internal/audit"
	"medcare.org/internal/obs"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour

	resetTokenTTL        = time.Hour
	verificationTokenTTL = 24 * time.Hour
)

// Service orchestrates sign-in strategies, registration, session issuance and
// the reset/verification flows.
type Service struct {
	store      Store
	tokens     *TokenService
	hasher     Hasher
	singleUse  *SingleUseTokens
	auditor    *audit.Logger
	sessionTTL time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithSessionTTL configures access token lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.tokens.WithClock(fn)
			s.singleUse.WithClock(fn)
		}
	}
}

// NewService constructs the orchestrator.
func NewService(store Store, tokens *TokenService, hasher Hasher, auditor *audit.Logger, opts ...ServiceOption) *Service {
	svc := &Service{
		store:      store,
		tokens:     tokens,
		hasher:     hasher,
		singleUse:  NewSingleUseTokens(tokens, store),
		auditor:    auditor,
		sessionTTL: defaultSessionTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SingleUse exposes the dual-source token helper.
func (s *Service) SingleUse() *SingleUseTokens { return s.singleUse }

// SessionTokens is the pair handed to a signed-in client.
type SessionTokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session is the enriched view handed to consumers on every session read. The
// token's claims are a cache; User and Profile here are re-fetched from the
// store so role and verification changes propagate without logout.
type Session struct {
	User      *User    `json:"user"`
	Profile   *Profile `json:"profile,omitempty"`
	SessionID string   `json:"session_id"`
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PasswordSignIn authenticates the email/password strategy. All failures
// collapse to ErrUnauthorized so callers cannot distinguish which factor was
// wrong.
func (s *Service) PasswordSignIn(ctx context.Context, email, password string, actx audit.Context) (SessionTokens, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		obs.ObserveSignIn("password", "rejected")
		return SessionTokens{}, nil, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		obs.ObserveSignIn("password", "rejected")
		return SessionTokens{}, nil, ErrUnauthorized
	}
	if user.PasswordHash == "" || !s.hasher.Verify(password, user.PasswordHash) {
		obs.ObserveSignIn("password", "rejected")
		return SessionTokens{}, nil, ErrUnauthorized
	}
	if !user.IsActive {
		obs.ObserveSignIn("password", "rejected")
		return SessionTokens{}, nil, ErrAccountInactive
	}
	return s.establishSession(ctx, user, "password", actx)
}

// PhoneSignIn emits a session after OTP verification has succeeded. The OTP
// check is a precondition handled by the otp endpoints; this step only
// resolves the account and issues claims.
func (s *Service) PhoneSignIn(ctx context.Context, phone string, actx audit.Context) (SessionTokens, *User, error) {
	user, err := s.store.FindUserByPhone(ctx, phone)
	if err != nil {
		obs.ObserveSignIn("otp", "rejected")
		return SessionTokens{}, nil, ErrUnauthorized
	}
	if !user.IsActive {
		obs.ObserveSignIn("otp", "rejected")
		return SessionTokens{}, nil, ErrAccountInactive
	}
	return s.establishSession(ctx, user, "otp", actx)
}

// OAuthSignIn accepts a federated identity that a provider has already
// verified. There is no auto-provisioning: staff must be pre-registered, so
// an unknown email is rejected.
func (s *Service) OAuthSignIn(ctx context.Context, email string, actx audit.Context) (SessionTokens, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		obs.ObserveSignIn("oauth", "rejected")
		return SessionTokens{}, nil, ErrUnauthorized
	}
	if !user.IsActive {
		obs.ObserveSignIn("oauth", "rejected")
		return SessionTokens{}, nil, ErrAccountInactive
	}
	return s.establishSession(ctx, user, "oauth", actx)
}

func (s *Service) establishSession(ctx context.Context, user *User, strategy string, actx audit.Context) (SessionTokens, *User, error) {
	if err := s.store.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		return SessionTokens{}, nil, err
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return SessionTokens{}, nil, err
	}
	actx.UserID = user.ID
	s.auditor.LogAuth(ctx, audit.ActionLogin, user.ID, actx)
	obs.ObserveSignIn(strategy, "success")
	return pair, user, nil
}

func (s *Service) mintTokens(ctx context.Context, user *User) (SessionTokens, error) {
	now := s.now()
	sessionID := uuid.NewString()

	access, err := s.tokens.IssueAccess(user, sessionID, s.sessionTTL)
	if err != nil {
		return SessionTokens{}, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, sessionID, s.refreshTTL)
	if err != nil {
		return SessionTokens{}, err
	}
	sum := sha256.Sum256([]byte(refresh))
	rec := &RefreshSession{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.store.CreateRefreshSession(ctx, rec); err != nil {
		return SessionTokens{}, err
	}
	return SessionTokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.sessionTTL),
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Refresh rotates the refresh token and issues a new pair. The persisted
// session row is the revocation authority: revoked, expired or hash-mismatch
// rows reject the token, and a mismatch additionally revokes the row since it
// signals replay of a rotated-out token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (SessionTokens, *User, error) {
	claims, err := s.tokens.Verify(refreshToken, PurposeRefresh)
	if err != nil {
		return SessionTokens{}, nil, ErrInvalidToken
	}
	rec, err := s.store.FindRefreshSession(ctx, claims.SessionID)
	if err != nil {
		return SessionTokens{}, nil, ErrInvalidToken
	}
	if rec.Revoked || s.now().After(rec.ExpiresAt) || rec.UserID != claims.UserID {
		return SessionTokens{}, nil, ErrInvalidToken
	}
	sum := sha256.Sum256([]byte(refreshToken))
	if hex.EncodeToString(sum[:]) != rec.TokenHash {
		_ = s.store.RevokeRefreshSession(ctx, rec.ID)
		return SessionTokens{}, nil, ErrInvalidToken
	}

	user, err := s.store.FindUserByID(ctx, rec.UserID)
	if err != nil {
		return SessionTokens{}, nil, ErrInvalidToken
	}
	if !user.IsActive {
		return SessionTokens{}, nil, ErrAccountInactive
	}
	// Password reset bumps updated_at; sessions minted before the bump are
	// implicitly invalidated.
	if claims.IssuedAt != nil && user.UpdatedAt.After(claims.IssuedAt.Time.Add(time.Second)) {
		_ = s.store.RevokeRefreshSession(ctx, rec.ID)
		return SessionTokens{}, nil, ErrInvalidToken
	}

	if err := s.store.RevokeRefreshSession(ctx, rec.ID); err != nil {
		return SessionTokens{}, nil, err
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return SessionTokens{}, nil, err
	}
	return pair, user, nil
}

// Session resolves and enriches a session from its access token. Claims are
// treated as a cache: the user row is re-fetched so permission and
// verification changes propagate on the next read without logout.
func (s *Service) Session(ctx context.Context, accessToken string) (*Session, error) {
	claims, err := s.tokens.Verify(accessToken, PurposeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if claims.IssuedAt != nil && user.UpdatedAt.After(claims.IssuedAt.Time.Add(time.Second)) {
		return nil, ErrInvalidToken
	}
	profile, err := s.store.FindProfile(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	sess := &Session{
		User:      user,
		Profile:   profile,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	return sess, nil
}

// UserByPhone resolves an account by phone number. Callers gate phone-bound
// flows (OTP login sends) on it.
func (s *Service) UserByPhone(ctx context.Context, phone string) (*User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	return s.store.FindUserByPhone(ctx, phone)
}

// Authenticate verifies an access token and resolves its principal against
// the user row, so role demotions, deactivation and verification changes take
// effect on the next request rather than at token expiry. Middleware calls
// this on every non-public request; the claims only provide identity and the
// session id.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token, PurposeAccess)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if !user.IsActive {
		return Principal{}, ErrAccountInactive
	}
	if claims.IssuedAt != nil && user.UpdatedAt.After(claims.IssuedAt.Time.Add(time.Second)) {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		SessionID:  claims.SessionID,
	}, nil
}

// SignOut revokes the session's refresh row and audits the event.
func (s *Service) SignOut(ctx context.Context, accessToken string, actx audit.Context) error {
	claims, err := s.tokens.Verify(accessToken, PurposeAccess)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.SessionID != "" {
		if err := s.store.RevokeRefreshSession(ctx, claims.SessionID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	actx.UserID = claims.UserID
	s.auditor.LogAuth(ctx, audit.ActionLogout, claims.UserID, actx)
	return nil
}

// RegisterInput is the registration request payload.
type RegisterInput struct {
	Email    string
	Password string
	Phone    string
	Role     Role
	Profile  Profile
}

// Register creates the user and profile atomically and issues an email
// verification token. Only the self-service PATIENT role auto-activates;
// staff roles stay inactive until externally approved.
func (s *Service) Register(ctx context.Context, in RegisterInput, actx audit.Context) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if strings.TrimSpace(in.Profile.FirstName) == "" || strings.TrimSpace(in.Profile.LastName) == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if validation := ValidatePassword(in.Password); !validation.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(validation.Errors, "; "))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     in.Role == RolePatient,
		IsVerified:   false,
	}
	if err := s.store.CreateUser(ctx, user, &in.Profile); err != nil {
		return nil, err
	}

	if _, err := s.singleUse.Issue(ctx, TokenTypeEmailVerification, in.Email, verificationTokenTTL); err != nil {
		return nil, err
	}

	actx.UserID = user.ID
	s.auditor.Log(ctx, audit.Entry{
		UserID:     user.ID,
		Action:     audit.ActionCreate,
		Resource:   "users",
		ResourceID: user.ID,
		NewValues:  map[string]any{"email": in.Email, "role": string(in.Role)},
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
	obs.Info("user registered", map[string]any{
		"user_id": user.ID,
		"role":    string(in.Role),
	})
	return user, nil
}

// VerifyEmail redeems an email verification token: both the signature and the
// persisted row must check out, then the flag flip and row delete commit in
// one transaction.
func (s *Service) VerifyEmail(ctx context.Context, token string, actx audit.Context) error {
	row, err := s.singleUse.Peek(ctx, TokenTypeEmailVerification, token)
	if err != nil {
		return ErrInvalidToken
	}
	user, err := s.store.FindUserByEmail(ctx, row.Identifier)
	if err != nil {
		return err
	}
	if err := s.store.MarkEmailVerified(ctx, user.ID, row.ID); err != nil {
		return err
	}
	actx.UserID = user.ID
	s.auditor.Log(ctx, audit.Entry{
		UserID:     user.ID,
		Action:     audit.ActionUpdate,
		Resource:   "users",
		ResourceID: user.ID,
		NewValues:  map[string]any{"is_verified": true},
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
	return nil
}

// RequestPasswordReset issues a reset token when the account exists and is
// active. It never reports whether the email is registered; the caller must
// return a uniform response either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, actx audit.Context) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil || !user.IsActive {
		return
	}
	if _, err := s.singleUse.Issue(ctx, TokenTypePasswordReset, email, resetTokenTTL); err != nil {
		obs.Error("password reset token issue failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return
	}
	actx.UserID = user.ID
	s.auditor.Log(ctx, audit.Entry{
		UserID:     user.ID,
		Action:     audit.ActionCreate,
		Resource:   "password_reset",
		ResourceID: user.ID,
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
	obs.Info("password reset token generated", map[string]any{"user_id": user.ID})
}

// PeekPasswordReset validates a reset token without consuming it and returns
// the email it was issued for.
func (s *Service) PeekPasswordReset(ctx context.Context, token string) (string, error) {
	row, err := s.singleUse.Peek(ctx, TokenTypePasswordReset, token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return row.Identifier, nil
}

// CompletePasswordReset redeems a reset token and sets the new password. The
// hash update, token delete and updated_at bump commit in one transaction;
// the bump implicitly invalidates every outstanding session, and refresh rows
// are revoked explicitly as well.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string, actx audit.Context) error {
	if validation := ValidatePassword(newPassword); !validation.IsValid {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(validation.Errors, "; "))
	}
	row, err := s.singleUse.Peek(ctx, TokenTypePasswordReset, token)
	if err != nil {
		return ErrInvalidToken
	}
	user, err := s.store.FindUserByEmail(ctx, row.Identifier)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.ResetPassword(ctx, user.ID, hash, row.ID); err != nil {
		return err
	}
	if err := s.store.RevokeUserRefreshSessions(ctx, user.ID); err != nil {
		obs.Warn("refresh session revocation failed after reset", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}
	actx.UserID = user.ID
	s.auditor.LogAuth(ctx, audit.ActionPasswordChange, user.ID, actx)
	obs.Info("password reset completed", map[string]any{"user_id": user.ID})
	return nil
}
