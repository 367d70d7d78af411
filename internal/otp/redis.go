package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "otp:"

// RedisStore keeps pending codes in redis so verification survives instance
// restarts and stays correct under a multi-instance deployment. Redis TTLs
// replace the background sweep.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisEntry struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

func (s *RedisStore) Put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(redisEntry{Code: e.Code, ExpiresAt: e.ExpiresAt, Attempts: e.Attempts})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("otp redis unavailable: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("otp redis unavailable: %w", err)
	}
	var ent redisEntry
	if err := json.Unmarshal(data, &ent); err != nil {
		return Entry{}, false, err
	}
	return Entry{Code: ent.Code, ExpiresAt: ent.ExpiresAt, Attempts: ent.Attempts}, true, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, key string) (int, error) {
	fullKey := redisKeyPrefix + key
	var attempts int
	// Optimistic transaction: read-modify-write under WATCH so concurrent
	// verify attempts on the same key do not lose increments.
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, fullKey).Bytes()
		if errors.Is(err, redis.Nil) {
			attempts = 0
			return nil
		}
		if err != nil {
			return err
		}
		var ent redisEntry
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		ent.Attempts++
		attempts = ent.Attempts
		ttl, err := tx.TTL(ctx, fullKey).Result()
		if err != nil {
			return err
		}
		updated, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, updated, ttl)
			return nil
		})
		return err
	}, fullKey)
	if err != nil {
		return 0, fmt.Errorf("otp redis unavailable: %w", err)
	}
	return attempts, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("otp redis unavailable: %w", err)
	}
	return nil
}
