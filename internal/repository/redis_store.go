package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adherence-agent/internal/domain"
)

const contextKeyPrefix = "adherence:context:"

// redisAPI is the subset of *redis.Client the store uses.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps each context under its own key with a sliding TTL.
type RedisStore struct {
	client redisAPI
	ttl    time.Duration
}

func NewRedisStore(client redisAPI, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return contextKeyPrefix + sessionID
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (domain.ConversationContext, bool, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ConversationContext{}, false, nil
	}
	if err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: redis get: %w", err)
	}

	var cc domain.ConversationContext
	if err := json.Unmarshal([]byte(val), &cc); err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: redis unmarshal context: %w", err)
	}
	return cc, true, nil
}

func (s *RedisStore) Save(ctx context.Context, cc domain.ConversationContext) error {
	if cc.SessionID == "" {
		return errors.New("repository: Save: session id is required")
	}
	val, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("repository: redis marshal context: %w", err)
	}
	if err := s.client.Set(ctx, s.key(cc.SessionID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("repository: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("repository: redis del: %w", err)
	}
	return nil
}
