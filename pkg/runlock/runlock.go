// Package runlock provides an exclusive per-configuration run claim
// backed by a Redis lease. At most one pipeline run may hold the claim
// for a given run configuration at any time.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "mailminer:runlock:"

// Lock is a Redis SET NX lease keyed by run configuration ID.
// The lease carries a holder token so Release only deletes a
// lease this process actually acquired.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
	token  string
}

func New(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Lock{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

// Acquire attempts to take the exclusive claim for the configuration.
// It returns false without error when another holder owns the lease.
func (l *Lock) Acquire(ctx context.Context, configurationID int64) (bool, error) {
	key := lockKey(configurationID)
	ok, err := l.client.SetNX(ctx, key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Release drops the claim if this lock still holds it. A lease that
// expired or was taken over by another holder is left untouched.
func (l *Lock) Release(ctx context.Context, configurationID int64) error {
	key := lockKey(configurationID)

	val, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	if val != l.token {
		return nil
	}

	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

func lockKey(configurationID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, configurationID)
}
