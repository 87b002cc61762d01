package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// SessionCache maps a username to the exact signed session token most
// recently issued for it. At most one value per username: Set overwrites,
// which implicitly revokes any earlier token. Entries expire with the
// token lifetime.
type SessionCache struct {
	client *redis.Client
}

func NewSessionCache(cfg *config.Config) *SessionCache {
	return &SessionCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
	}
}

// Ping verifies connectivity at startup.
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *SessionCache) Get(ctx context.Context, username string) (string, error) {
	v, err := c.client.Get(ctx, keyPrefix+username).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("no session for %s: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (c *SessionCache) Set(ctx context.Context, username, token string, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+username, token, ttl).Err()
}

func (c *SessionCache) Delete(ctx context.Context, username string) error {
	return c.client.Del(ctx, keyPrefix+username).Err()
}

// Close releases the underlying connection pool.
func (c *SessionCache) Close() error {
	return c.client.Close()
}
