package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"medcare.org/internal/ids"
)

// MemoryStore is a process-local Store for tests and local development. It
// honours the same atomicity contract as the Postgres store: multi-step
// mutations happen under one lock acquisition.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*User    // by id
	profiles map[string]*Profile // by user id
	tokens   map[string]*VerificationToken
	sessions map[string]*RefreshSession
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		profiles: make(map[string]*Profile),
		tokens:   make(map[string]*VerificationToken),
		sessions: make(map[string]*RefreshSession),
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *MemoryStore) WithClock(fn func() time.Time) *MemoryStore {
	s.now = fn
	return s
}

func (s *MemoryStore) CreateUser(_ context.Context, u *User, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
		if u.Phone != "" && existing.Phone == u.Phone {
			return ErrConflict
		}
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	if p != nil {
		p.UserID = u.ID
		pp := *p
		s.profiles[u.ID] = &pp
	}
	return nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindUserByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone != "" && u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = at.UTC()
	return nil
}

func (s *MemoryStore) ResetPassword(_ context.Context, userID, passwordHash, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now().UTC()
	delete(s.tokens, tokenID)
	return nil
}

func (s *MemoryStore) MarkEmailVerified(_ context.Context, userID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsVerified = true
	delete(s.tokens, tokenID)
	return nil
}

func (s *MemoryStore) CreateVerificationToken(_ context.Context, tok *VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tok.CreatedAt = s.now().UTC()
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *MemoryStore) FindVerificationToken(_ context.Context, token string) (*VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.Token == token {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteVerificationToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *MemoryStore) CreateRefreshSession(_ context.Context, sess *RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.CreatedAt = s.now().UTC()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) FindRefreshSession(_ context.Context, id string) (*RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Revoked = true
	return nil
}

func (s *MemoryStore) RevokeUserRefreshSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.Revoked = true
		}
	}
	return nil
}
