package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer   = "medcare"
	tokenAudience = "medcare-users"
)

// TokenPurpose scopes what a signed token may be used for. Verification fails
// closed when the embedded purpose does not match the expected one.
type TokenPurpose string

const (
	PurposeAccess            TokenPurpose = "access"
	PurposeRefresh           TokenPurpose = "refresh"
	PurposePasswordReset     TokenPurpose = "password-reset"
	PurposeEmailVerification TokenPurpose = "email-verification"
)

// SessionClaims is the stateless session payload. Role and IsVerified are a
// cache of the user row at issue time; readers treating them as authoritative
// must re-fetch (see Service.Session).
type SessionClaims struct {
	UserID     string       `json:"user_id"`
	Email      string       `json:"email,omitempty"`
	Role       Role         `json:"role,omitempty"`
	IsVerified bool         `json:"is_verified"`
	SessionID  string       `json:"session_id,omitempty"`
	Purpose    TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies purpose-scoped HS256 tokens. Access and
// refresh tokens are signed with distinct secrets; reset and verification
// tokens share the access secret but carry their own purpose.
type TokenService struct {
	secret        []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewTokenService constructs a TokenService. Both secrets are required.
func NewTokenService(secret, refreshSecret string) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("token secrets are required")
	}
	return &TokenService{
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}, nil
}

// WithClock overrides the time source, for tests.
func (t *TokenService) WithClock(fn func() time.Time) *TokenService {
	if fn != nil {
		t.now = fn
	}
	return t
}

func (t *TokenService) secretFor(purpose TokenPurpose) []byte {
	if purpose == PurposeRefresh {
		return t.refreshSecret
	}
	return t.secret
}

// Issue signs claims with the purpose-scoped secret and the given ttl.
func (t *TokenService) Issue(purpose TokenPurpose, claims SessionClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := t.now().UTC()
	claims.Purpose = purpose
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secretFor(purpose))
}

// Verify parses the token and checks signature, expiry, issuer, audience and
// purpose. Every failure collapses to ErrInvalidToken.
func (t *TokenService) Verify(token string, expected TokenPurpose) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secretFor(expected), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != expected {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" && expected != PurposePasswordReset && expected != PurposeEmailVerification {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueAccess signs a session token for the user.
func (t *TokenService) IssueAccess(u *User, sessionID string, ttl time.Duration) (string, error) {
	return t.Issue(PurposeAccess, SessionClaims{
		UserID:     u.ID,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		SessionID:  sessionID,
	}, ttl)
}

// IssueRefresh signs a refresh token bound to the session id. Only the
// (userID, sessionID) pair is embedded, minimizing replay blast radius.
func (t *TokenService) IssueRefresh(userID, sessionID string, ttl time.Duration) (string, error) {
	return t.Issue(PurposeRefresh, SessionClaims{
		UserID:    userID,
		SessionID: sessionID,
	}, ttl)
}

// IssueForEmail signs a reset or verification token carrying the identifier
// in the Email claim.
func (t *TokenService) IssueForEmail(purpose TokenPurpose, email string, ttl time.Duration) (string, error) {
	if purpose != PurposePasswordReset && purpose != PurposeEmailVerification {
		return "", errors.New("purpose must be password-reset or email-verification")
	}
	return t.Issue(purpose, SessionClaims{Email: strings.ToLower(strings.TrimSpace(email))}, ttl)
}
