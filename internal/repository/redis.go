package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationBackend is the durable revocation set the cache fronts.
type RevocationBackend interface {
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	Revoke(ctx context.Context, tokenHash string) error
}

// CachedRevocations is a write-through Redis cache over the durable set. A
// cache hit answers "revoked" without touching Postgres; a miss always falls
// through, so a cold or unavailable cache can never make a revoked token valid.
type CachedRevocations struct {
	backend RevocationBackend
	redis   *redis.Client
	ttl     time.Duration
}

func NewCachedRevocations(backend RevocationBackend, redisClient *redis.Client, ttl time.Duration) *CachedRevocations {
	return &CachedRevocations{backend: backend, redis: redisClient, ttl: ttl}
}

func revokedKey(tokenHash string) string {
	return "revoked:" + tokenHash
}

func (c *CachedRevocations) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if c.redis != nil {
		n, err := c.redis.Exists(ctx, revokedKey(tokenHash)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			log.Printf("[REVOCATION] Cache lookup failed, falling back to database: %v", err)
		}
	}

	revoked, err := c.backend.IsRevoked(ctx, tokenHash)
	if err != nil {
		return false, err
	}
	if revoked && c.redis != nil {
		if err := c.redis.Set(ctx, revokedKey(tokenHash), "1", c.ttl).Err(); err != nil {
			log.Printf("[REVOCATION] Failed to warm cache: %v", err)
		}
	}
	return revoked, nil
}

func (c *CachedRevocations) Revoke(ctx context.Context, tokenHash string) error {
	if err := c.backend.Revoke(ctx, tokenHash); err != nil {
		return err
	}
	if c.redis != nil {
		if err := c.redis.Set(ctx, revokedKey(tokenHash), "1", c.ttl).Err(); err != nil {
			log.Printf("[REVOCATION] Failed to cache revocation: %v", err)
		}
	}
	return nil
}

// RedisQueue is a FIFO list of opaque payloads.
type RedisQueue struct {
	redis *redis.Client
	key   string
}

func NewRedisQueue(redisClient *redis.Client, key string) *RedisQueue {
	return &RedisQueue{redis: redisClient, key: key}
}

var ErrQueueUnavailable = errors.New("queue unavailable")

func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	if q == nil || q.redis == nil {
		return ErrQueueUnavailable
	}
	return q.redis.RPush(ctx, q.key, payload).Err()
}

// Pop returns the oldest payload, or nil when the queue is empty.
func (q *RedisQueue) Pop(ctx context.Context) ([]byte, error) {
	if q == nil || q.redis == nil {
		return nil, ErrQueueUnavailable
	}
	data, err := q.redis.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}
