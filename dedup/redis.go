package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the same check-and-mark contract on a shared Redis,
// for deployments with more than one pipeline instance where the in-memory
// ledger would silently stop recognizing retries routed to a sibling.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(addr string, ttl time.Duration, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, prefix: prefix}, nil
}

func (r *RedisStore) key(identity string) string {
	return fmt.Sprintf("%s:%s", r.prefix, identity)
}

func (r *RedisStore) CheckAndMark(ctx context.Context, identity string) (bool, error) {
	key := r.key(identity)

	// SETNX returns true if the key was set, i.e. first sight.
	wasSet, err := r.client.SetNX(ctx, key, string(OutcomePending), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if wasSet {
		return false, nil
	}

	state, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; treat as first sight.
		if err := r.client.Set(ctx, key, string(OutcomePending), r.ttl).Err(); err != nil {
			return false, fmt.Errorf("redis set: %w", err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}

	if Outcome(state) == OutcomeFailure {
		if err := r.client.Set(ctx, key, string(OutcomePending), r.ttl).Err(); err != nil {
			return false, fmt.Errorf("redis set: %w", err)
		}
		return false, nil
	}

	return true, nil
}

func (r *RedisStore) MarkOutcome(ctx context.Context, identity string, outcome Outcome) error {
	// XX: only update a key that still exists. A plain SET after the pending
	// key expired would recreate it without a TTL and pin the identity.
	err := r.client.SetArgs(ctx, r.key(identity), string(outcome), redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err == redis.Nil {
		// The window already elapsed; the identity is free again.
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set outcome: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
