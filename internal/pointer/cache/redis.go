package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "veto/pkg/domain"
)

const (
	// Redis key prefix for orphan tombstones
	tombstoneKeyPrefix = "veto:orphaned:"

	defaultTombstoneTTL = 24 * time.Hour
)

// Redis is a Redis-backed Tombstones shared by all server instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a Redis tombstone cache.
type RedisOption func(*Redis)

// WithTTL bounds how long a tombstone is kept. Expiry only costs a database read.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: defaultTombstoneTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func tombstoneKey(pointerID id.PointerID) string {
	return tombstoneKeyPrefix + pointerID.String()
}

// MarkOrphaned stores the orphan time with the configured TTL.
func (r *Redis) MarkOrphaned(ctx context.Context, pointerID id.PointerID, orphanedAt time.Time) error {
	value := orphanedAt.UTC().Format(time.RFC3339Nano)
	return r.client.Set(ctx, tombstoneKey(pointerID), value, r.ttl).Err()
}

// OrphanedAt returns false when the key doesn't exist (never orphaned, or expired).
func (r *Redis) OrphanedAt(ctx context.Context, pointerID id.PointerID) (time.Time, bool, error) {
	value, err := r.client.Get(ctx, tombstoneKey(pointerID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt tombstone for %s: %w", pointerID, err)
	}
	return at, true, nil
}
