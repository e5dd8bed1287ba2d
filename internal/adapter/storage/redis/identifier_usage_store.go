package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// usageTTL keeps a day's counters around long enough to survive a restart
// shortly after midnight in any timezone.
const usageTTL = 48 * time.Hour

// IdentifierUsageStore implements ports.IdentifierUsageStore with one Redis
// hash per calendar day: field = handle, value = uses.
type IdentifierUsageStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewIdentifierUsageStore creates a new Redis-backed usage mirror.
func NewIdentifierUsageStore(client goredis.UniversalClient) *IdentifierUsageStore {
	return &IdentifierUsageStore{
		client: client,
		prefix: "pool:usage:",
	}
}

// IncrUsage counts one use of handle on day and returns the new count.
func (s *IdentifierUsageStore) IncrUsage(ctx context.Context, day string, handle string) (int64, error) {
	key := s.prefix + day

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, handle, 1)
	pipe.Expire(ctx, key, usageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis usage incr: %w", err)
	}
	return incr.Val(), nil
}

// GetUsage returns every handle's count for day. A missing day is an empty map.
func (s *IdentifierUsageStore) GetUsage(ctx context.Context, day string) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.prefix+day).Result()
	if err != nil {
		return nil, fmt.Errorf("redis usage get: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for handle, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis usage get: handle %s: %w", handle, err)
		}
		out[handle] = n
	}
	return out, nil
}

// ClearUsage drops day's counters.
func (s *IdentifierUsageStore) ClearUsage(ctx context.Context, day string) error {
	if err := s.client.Del(ctx, s.prefix+day).Err(); err != nil {
		return fmt.Errorf("redis usage clear: %w", err)
	}
	return nil
}
