package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// NotifyTokenStore implements ports.NotifyTokenStore. Each token maps to its
// owner, and each owner keeps a set of its live tokens so a session end can
// revoke all of them.
type NotifyTokenStore struct {
	client *goredis.Client
	prefix string
}

// NewNotifyTokenStore creates a new Redis-backed notification token store.
func NewNotifyTokenStore(client *goredis.Client) *NotifyTokenStore {
	return &NotifyTokenStore{
		client: client,
		prefix: "notify:",
	}
}

func (s *NotifyTokenStore) tokenKey(token string) string {
	return s.prefix + "token:" + token
}

func (s *NotifyTokenStore) ownerKey(ownerID uuid.UUID) string {
	return s.prefix + "owner:" + ownerID.String()
}

// Issue stores token for ttl.
func (s *NotifyTokenStore) Issue(ctx context.Context, token string, ownerID uuid.UUID, ttl time.Duration) error {
	ownerKey := s.ownerKey(ownerID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(token), ownerID.String(), ttl)
		pipe.SAdd(ctx, ownerKey, token)
		pipe.Expire(ctx, ownerKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis notify token issue: %w", err)
	}
	return nil
}

// Consume removes token and returns its owner. GETDEL makes a second
// consumer of the same token see nothing.
func (s *NotifyTokenStore) Consume(ctx context.Context, token string) (uuid.UUID, bool, error) {
	val, err := s.client.GetDel(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("redis notify token consume: %w", err)
	}

	ownerID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("redis notify token owner: %w", err)
	}
	if err := s.client.SRem(ctx, s.ownerKey(ownerID), token).Err(); err != nil {
		return uuid.Nil, false, fmt.Errorf("redis notify token untrack: %w", err)
	}
	return ownerID, true, nil
}

// RevokeOwner deletes every unconsumed token of ownerID and returns how
// many were still live.
func (s *NotifyTokenStore) RevokeOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	ownerKey := s.ownerKey(ownerID)
	tokens, err := s.client.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis notify token list: %w", err)
	}

	var revoked int64
	if len(tokens) > 0 {
		keys := make([]string, len(tokens))
		for i, t := range tokens {
			keys[i] = s.tokenKey(t)
		}
		if revoked, err = s.client.Del(ctx, keys...).Result(); err != nil {
			return 0, fmt.Errorf("redis notify token revoke: %w", err)
		}
	}
	if err := s.client.Del(ctx, ownerKey).Err(); err != nil {
		return 0, fmt.Errorf("redis notify token revoke: %w", err)
	}
	return int(revoked), nil
}
