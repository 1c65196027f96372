package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to the Redis server at url and verifies it answers.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// OwnerCache shares resolved owners between relay instances. Ownership of a
// resource never changes, so entries only expire to bound memory. Redis
// failures fall through to the wrapped resolver.
type OwnerCache struct {
	client *goredis.Client
	next   ports.OwnerResolver
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var (
	_ ports.OwnerResolver = (*OwnerCache)(nil)
	_ ports.HealthChecker = (*OwnerCache)(nil)
)

// NewOwnerCache wraps next with a Redis read-through cache.
func NewOwnerCache(client *goredis.Client, next ports.OwnerResolver, prefix string, ttl time.Duration, logger *slog.Logger) *OwnerCache {
	return &OwnerCache{
		client: client,
		next:   next,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "redis_owner_cache"),
	}
}

func (c *OwnerCache) key(kind domain.ResourceKind, resourceID string) string {
	return c.prefix + string(kind) + ":" + resourceID
}

// ResolveOwner returns the cached owner or asks the wrapped resolver.
// Unknown resources are not cached.
func (c *OwnerCache) ResolveOwner(ctx context.Context, kind domain.ResourceKind, resourceID string) (string, error) {
	key := c.key(kind, resourceID)

	owner, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return owner, nil
	case !errors.Is(err, goredis.Nil):
		c.logger.WarnContext(ctx, "owner cache read failed", "key", key, "error", err)
	}

	owner, err = c.next.ResolveOwner(ctx, kind, resourceID)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, owner, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "owner cache write failed", "key", key, "error", err)
	}
	return owner, nil
}

// Ping verifies Redis connectivity.
func (c *OwnerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *OwnerCache) Close() error {
	return c.client.Close()
}
