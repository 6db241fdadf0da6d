package storage

import (
	"context"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore keeps one pending authentication nonce per wallet with a
// TTL. Consume is atomic: GETDEL guarantees a nonce authenticates at most
// once even under concurrent attempts.
type RedisNonceStore struct {
	client *redis.Client
}

// NewRedisNonceStore creates a nonce store over a Redis connection
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func nonceKey(wallet string) string {
	return "auth:nonce:" + wallet
}

// Save stores the pending nonce for a wallet, replacing any previous one
func (s *RedisNonceStore) Save(ctx context.Context, wallet, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, nonceKey(wallet), nonce, ttl).Err(); err != nil {
		return errors.NewDatabaseError("save nonce", err)
	}
	return nil
}

// Consume removes the pending nonce for a wallet and verifies it matches.
// A missing, expired or mismatched nonce fails with Conflict.
func (s *RedisNonceStore) Consume(ctx context.Context, wallet, nonce string) error {
	stored, err := s.client.GetDel(ctx, nonceKey(wallet)).Result()
	if err == redis.Nil {
		return errors.NewConflictError("nonce already used or expired")
	}
	if err != nil {
		return errors.NewDatabaseError("consume nonce", err)
	}
	if stored != nonce {
		return errors.NewConflictError("nonce already used or expired")
	}
	return nil
}
