package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/models"
	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the identity when no key is configured.
const DefaultRedisKey = "agentdesk:identity"

// RedisStore keeps the identity as JSON under one Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to url and verifies the server answers.
func NewRedisStore(ctx context.Context, url, key string) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if key == "" {
		key = DefaultRedisKey
	}

	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisStore{client: c, key: key}, nil
}

// Ensure interface compliance at compile time
var (
	_ IdentityStore = (*RedisStore)(nil)
	_ IdentityStore = (*FileStore)(nil)
)

func (s *RedisStore) Load(ctx context.Context) (models.AgentIdentity, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.AgentIdentity{}, ErrNoIdentity
	}
	if err != nil {
		return models.AgentIdentity{}, fmt.Errorf("redis: get identity: %w", err)
	}

	var identity models.AgentIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return models.AgentIdentity{}, fmt.Errorf("redis: decode identity: %w", err)
	}
	if err := identity.Validate(); err != nil {
		return models.AgentIdentity{}, fmt.Errorf("redis: load identity: %w", err)
	}
	return identity.Normalize(), nil
}

func (s *RedisStore) Save(ctx context.Context, identity models.AgentIdentity) error {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("redis: encode identity: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: save identity: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis: clear identity: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
