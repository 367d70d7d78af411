package auth

import (
	"context"
	"strings"
	"time"
)

// SingleUseTokens issues and redeems the dual-source tokens used for password
// reset and email verification. Cryptographic validity of the signed token is
// necessary but not sufficient: the persisted row provides revocability, so a
// signed token whose row is gone has already been consumed.
type SingleUseTokens struct {
	tokens *TokenService
	store  Store
	now    func() time.Time
}

func NewSingleUseTokens(tokens *TokenService, store Store) *SingleUseTokens {
	return &SingleUseTokens{tokens: tokens, store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *SingleUseTokens) WithClock(fn func() time.Time) *SingleUseTokens {
	if fn != nil {
		s.now = fn
	}
	return s
}

func purposeFor(t VerificationTokenType) TokenPurpose {
	if t == TokenTypePasswordReset {
		return PurposePasswordReset
	}
	return PurposeEmailVerification
}

// Issue signs a purpose-scoped token for the identifier and persists the
// matching row.
func (s *SingleUseTokens) Issue(ctx context.Context, typ VerificationTokenType, email string, ttl time.Duration) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	signed, err := s.tokens.IssueForEmail(purposeFor(typ), email, ttl)
	if err != nil {
		return "", err
	}
	row := &VerificationToken{
		Identifier: email,
		Token:      signed,
		Type:       typ,
		ExpiresAt:  s.now().Add(ttl),
	}
	if err := s.store.CreateVerificationToken(ctx, row); err != nil {
		return "", err
	}
	return signed, nil
}

// Peek verifies both sources without consuming the token: the signature and
// purpose of the signed token, then the row's presence, type, expiry and
// identifier match. Every failure collapses to ErrInvalidToken.
func (s *SingleUseTokens) Peek(ctx context.Context, typ VerificationTokenType, token string) (*VerificationToken, error) {
	claims, err := s.tokens.Verify(token, purposeFor(typ))
	if err != nil {
		return nil, ErrInvalidToken
	}
	row, err := s.store.FindVerificationToken(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if row.Type != typ || s.now().After(row.ExpiresAt) || row.Identifier != claims.Email {
		return nil, ErrInvalidToken
	}
	return row, nil
}

// Consume verifies and deletes the row. Flows that couple consumption with a
// user mutation should instead Peek and pass the row id to the store's
// transactional method so verify and delete stay in one transaction.
func (s *SingleUseTokens) Consume(ctx context.Context, typ VerificationTokenType, token string) (*VerificationToken, error) {
	row, err := s.Peek(ctx, typ, token)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteVerificationToken(ctx, row.ID); err != nil {
		return nil, err
	}
	return row, nil
}
