package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WebhookResultCache implements ports.WebhookResultCache using Redis.
type WebhookResultCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewWebhookResultCache creates a new Redis-backed cache of resolved callbacks.
func NewWebhookResultCache(client goredis.UniversalClient) *WebhookResultCache {
	return &WebhookResultCache{
		client: client,
		prefix: "webhook:result:",
	}
}

// Get retrieves a cached result by slug:ref key.
// Returns nil, nil if the key does not exist.
func (c *WebhookResultCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis webhook result get: %w", err)
	}
	return val, nil
}

// Set stores a resolved result with TTL.
func (c *WebhookResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis webhook result set: %w", err)
	}
	return nil
}
