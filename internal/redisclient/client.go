package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "idempotency:"

// Index is a Redis-backed idempotency index. SetNX gives the atomic
// check-and-insert; TTL handling is delegated to Redis key expiry.
type Index struct {
	rdb *redis.Client
}

// NewIndex creates a Redis-backed idempotency index and verifies the
// connection.
func NewIndex(addr, password string, db int) (*Index, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Index{rdb: rdb}, nil
}

// PutIfAbsent atomically installs key -> paymentID unless present.
// When the SetNX loses, the winner's id is read back; if the entry
// expired in that window the insert is retried.
func (i *Index) PutIfAbsent(ctx context.Context, key, paymentID string, ttl time.Duration) (string, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		inserted, err := i.rdb.SetNX(ctx, keyPrefix+key, paymentID, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("idempotency setnx failed: %w", err)
		}
		if inserted {
			return paymentID, true, nil
		}

		winner, err := i.rdb.Get(ctx, keyPrefix+key).Result()
		if err == redis.Nil {
			// Entry expired between SetNX and Get; try again.
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("idempotency get failed: %w", err)
		}
		return winner, false, nil
	}
	return "", false, fmt.Errorf("idempotency key %q kept expiring mid-insert", key)
}

// Get returns the payment id for key, if present.
func (i *Index) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := i.rdb.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Delete drops the entry for key.
func (i *Index) Delete(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, keyPrefix+key).Err()
}

// Close closes the Redis connection.
func (i *Index) Close() error {
	return i.rdb.Close()
}
