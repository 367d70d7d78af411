package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	expires := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	if err := store.Put(ctx, "key", Entry{Code: "123456", ExpiresAt: expires}, 11*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.Code != "123456" || !entry.ExpiresAt.Equal(expires) || entry.Attempts != 0 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "key"); ok {
		t.Fatal("entry survived delete")
	}
	// deleting an absent key is a no-op
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("idempotent delete: %v", err)
	}
}

func TestRedisStoreTTLEviction(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, "key", Entry{Code: "123456"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "key"); ok {
		t.Fatal("entry survived its TTL")
	}
}

func TestRedisStoreIncrementAttemptsPreservesTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, "key", Entry{Code: "123456"}, 10*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := store.IncrementAttempts(ctx, "key")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("attempts = %d, want %d", got, want)
		}
	}

	ttl := srv.TTL("otp:key")
	if ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("ttl not preserved across increments: %v", ttl)
	}

	// incrementing an absent key reports zero
	got, err := store.IncrementAttempts(ctx, "ghost")
	if err != nil {
		t.Fatalf("increment absent: %v", err)
	}
	if got != 0 {
		t.Fatalf("attempts on absent key = %d, want 0", got)
	}
}

func TestRedisLimiterWindow(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	limiter := NewRedisLimiter(client)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "+15551234567", 5, time.Hour)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("attempt %d unexpectedly blocked", i+1)
		}
	}
	allowed, err := limiter.Allow(ctx, "+15551234567", 5, time.Hour)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("6th attempt inside the window must be blocked")
	}

	srv.FastForward(2 * time.Hour)
	allowed, err = limiter.Allow(ctx, "+15551234567", 5, time.Hour)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("budget must reset after the window")
	}
}
