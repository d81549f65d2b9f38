package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adherence-agent/internal/domain"
)

const defaultTTL = time.Hour

var (
	ErrInvalidStoreType = errors.New("repository: invalid store type")
	ErrInvalidConfig    = errors.New("repository: invalid store configuration")
)

// Store keeps the conversation context between turns of one session.
// Load reports found=false for unknown or expired sessions.
type Store interface {
	Load(ctx context.Context, sessionID string) (cc domain.ConversationContext, found bool, err error)
	Save(ctx context.Context, cc domain.ConversationContext) error
	Delete(ctx context.Context, sessionID string) error
}

type storeConfig struct {
	dynamo    dynamodbAPI
	tableName string
	redis     redisAPI
	ttl       time.Duration
}

type StoreOption func(*storeConfig)

// WithDynamoDB selects the table the DynamoDB store writes to.
func WithDynamoDB(api dynamodbAPI, tableName string) StoreOption {
	return func(c *storeConfig) {
		c.dynamo = api
		c.tableName = tableName
	}
}

// WithRedisClient accepts a *redis.Client or anything with the same
// Get/Set/Del methods.
func WithRedisClient(client redisAPI) StoreOption {
	return func(c *storeConfig) {
		c.redis = client
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// NewStore builds the store named by kind ("dynamodb", "redis" or "memory").
func NewStore(kind string, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultTTL
	}

	switch kind {
	case "dynamodb":
		if cfg.dynamo == nil {
			return nil, fmt.Errorf("%w: dynamodb client required", ErrInvalidConfig)
		}
		return NewDynamoStore(cfg.dynamo, cfg.tableName, cfg.ttl)
	case "redis":
		if cfg.redis == nil {
			return nil, fmt.Errorf("%w: redis client required", ErrInvalidConfig)
		}
		return NewRedisStore(cfg.redis, cfg.ttl), nil
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, kind)
}
