package otp

import (
	"context"
	"sync"
	"time"
)

// Entry is a pending code keyed by phone and purpose.
type Entry struct {
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

// Store holds pending codes. Implementations must tolerate concurrent sweeps
// and foreground writes on the same keys (idempotent deletes).
type Store interface {
	Put(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Get(ctx context.Context, key string) (Entry, bool, error)
	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, key string) (int, error)
	Delete(ctx context.Context, key string) error
}

// Key builds the store key for a phone and purpose.
func Key(phone string, purpose Purpose) string {
	return FormatPhone(phone) + ":" + string(purpose)
}

// MemoryStore is the process-local Store used for single-instance deployments
// and tests. State does not survive a restart; codes are short-lived and
// re-issuable, so that is acceptable.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	Entry
	evictAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *MemoryStore) WithClock(fn func() time.Time) *MemoryStore {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *MemoryStore) Put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memoryEntry{Entry: e, evictAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok || s.now().After(ent.evictAt) {
		return Entry{}, false, nil
	}
	return ent.Entry, true, nil
}

func (s *MemoryStore) IncrementAttempts(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	ent.Attempts++
	return ent.Attempts, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Sweep removes entries past their eviction time and returns how many were
// deleted. Run from a periodic timer to bound memory growth.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, ent := range s.entries {
		if now.After(ent.evictAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
