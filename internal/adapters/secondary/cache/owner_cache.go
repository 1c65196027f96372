// Package cache keeps recently resolved resource owners in process memory so
// that repeated joins to the same room skip the database.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// OwnerCache is a bounded, expiring read-through cache over an OwnerResolver.
type OwnerCache struct {
	next ports.OwnerResolver
	lru  *expirable.LRU[string, string]
}

var _ ports.OwnerResolver = (*OwnerCache)(nil)

// NewOwnerCache caches up to size owners for ttl each.
func NewOwnerCache(next ports.OwnerResolver, size int, ttl time.Duration) *OwnerCache {
	return &OwnerCache{
		next: next,
		lru:  expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// ResolveOwner serves from memory when possible. Failures are never cached so
// a resource created after a miss becomes visible on the next lookup.
func (c *OwnerCache) ResolveOwner(ctx context.Context, kind domain.ResourceKind, resourceID string) (string, error) {
	key := string(kind) + ":" + resourceID
	if owner, ok := c.lru.Get(key); ok {
		return owner, nil
	}

	owner, err := c.next.ResolveOwner(ctx, kind, resourceID)
	if err != nil {
		return "", err
	}
	c.lru.Add(key, owner)
	return owner, nil
}

// Len reports the number of cached owners.
func (c *OwnerCache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached owner.
func (c *OwnerCache) Purge() {
	c.lru.Purge()
}
