package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no cached availability exists for the key.
var ErrCacheMiss = errors.New("availability cache miss")

// AvailabilityCache is a read-path cache for "available slots" queries.
// It is never authoritative: every slot or booking mutation for a tutor
// must call Invalidate, and entries expire on their own via the TTL.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func availabilityKey(tutorID uuid.UUID) string {
	return fmt.Sprintf("avail:tutor:%s", tutorID.String())
}

// Get returns the cached JSON payload for one date range. Ranges are hash
// fields under a single per-tutor key so Invalidate can drop them all at once.
func (c *AvailabilityCache) Get(ctx context.Context, tutorID uuid.UUID, rangeKey string) ([]byte, error) {
	data, err := c.client.HGet(ctx, availabilityKey(tutorID), rangeKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("availability cache get: %w", err)
	}
	return data, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, tutorID uuid.UUID, rangeKey string, payload []byte) error {
	key := availabilityKey(tutorID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, rangeKey, payload)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("availability cache set: %w", err)
	}
	return nil
}

// Invalidate drops every cached range for the tutor.
func (c *AvailabilityCache) Invalidate(ctx context.Context, tutorID uuid.UUID) error {
	if err := c.client.Del(ctx, availabilityKey(tutorID)).Err(); err != nil {
		return fmt.Errorf("availability cache invalidate: %w", err)
	}
	return nil
}
