package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps sessions in Redis keyed by token. The Redis TTL
// mirrors the session expiry so stale sessions evict themselves.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a session store over a Redis connection
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(token string) string {
	return "auth:session:" + token
}

// Save persists a session until its expiry
func (s *RedisSessionStore) Save(ctx context.Context, session *types.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.NewInternalError("failed to encode session", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.NewInvalidArgumentError("session", "already expired")
	}
	if err := s.client.Set(ctx, sessionKey(session.Token), payload, ttl).Err(); err != nil {
		return errors.NewDatabaseError("save session", err)
	}
	return nil
}

// Get resolves a token to its session
func (s *RedisSessionStore) Get(ctx context.Context, token string) (*types.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError("session", token)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get session", err)
	}
	var session types.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.NewInternalError("failed to decode session", err)
	}
	return &session, nil
}

// Delete removes a session. Deleting an unknown token is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return errors.NewDatabaseError("delete session", err)
	}
	return nil
}
