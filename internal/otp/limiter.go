package otp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter throttles OTP sends per identity: a fixed window that resets when
// it elapses and blocks once maxAttempts is reached inside the window.
type Limiter interface {
	// Allow records one attempt and reports whether it is within the window
	// budget.
	Allow(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (bool, error)
	// Sweep drops expired windows. A no-op for TTL-backed implementations.
	Sweep()
}

// MemoryLimiter is the process-local Limiter. Counters are keyed by masked
// identifier so raw phone numbers never sit in memory longer than needed.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*limiterRecord
	now     func() time.Time
}

type limiterRecord struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		records: make(map[string]*limiterRecord),
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (l *MemoryLimiter) WithClock(fn func() time.Time) *MemoryLimiter {
	if fn != nil {
		l.now = fn
	}
	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (bool, error) {
	key := MaskPhone(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok || now.After(rec.resetAt) {
		l.records[key] = &limiterRecord{count: 1, resetAt: now.Add(window)}
		return true, nil
	}
	if rec.count >= maxAttempts {
		return false, nil
	}
	rec.count++
	return true, nil
}

func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, key)
		}
	}
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// RedisLimiter enforces the window with INCR plus EXPIRE so the counter is
// atomic across instances.
type RedisLimiter struct {
	client *redis.Client
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (bool, error) {
	key := "otpl:" + MaskPhone(identifier)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("otp limiter unavailable: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("otp limiter unavailable: %w", err)
		}
	}
	return count <= int64(maxAttempts), nil
}

func (l *RedisLimiter) Sweep() {}
