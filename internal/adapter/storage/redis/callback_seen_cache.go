package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CallbackSeenCache implements ports.CallbackSeenCache. It only short-circuits
// obvious replays; the webhook_logs unique index stays authoritative.
type CallbackSeenCache struct {
	client *goredis.Client
	prefix string
}

// NewCallbackSeenCache creates a new Redis-backed callback cache.
func NewCallbackSeenCache(client *goredis.Client) *CallbackSeenCache {
	return &CallbackSeenCache{
		client: client,
		prefix: "webhook:seen:",
	}
}

// Seen reports whether payloadHash was marked within its TTL.
func (c *CallbackSeenCache) Seen(ctx context.Context, payloadHash string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+payloadHash).Result()
	if err != nil {
		return false, fmt.Errorf("redis callback seen: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records payloadHash for ttl.
func (c *CallbackSeenCache) MarkSeen(ctx context.Context, payloadHash string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+payloadHash, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis callback mark seen: %w", err)
	}
	return nil
}
