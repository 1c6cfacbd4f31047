package user

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"idstore/internal/identity/models"
	id "idstore/pkg/domain"
)

// CachedStore decorates a Store with a Redis read-through cache for the hot
// normalized-username lookup (every login resolves a username). Writes
// invalidate eagerly; the TTL bounds staleness if an invalidation is lost.
// All other operations pass through untouched - the cache is an accelerator,
// never an authority, so a miss or a Redis outage degrades to the inner
// store.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
}

// NewCached wraps inner with a normalized-username lookup cache.
func NewCached(inner Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: inner, client: client, ttl: ttl}
}

func cacheKey(normalized string) string {
	return "idstore:user:nuname:" + normalized
}

func (c *CachedStore) FindByNormalizedUserName(ctx context.Context, normalized string) (*models.User, error) {
	if payload, err := c.client.Get(ctx, cacheKey(normalized)).Bytes(); err == nil {
		var user models.User
		if err := json.Unmarshal(payload, &user); err == nil {
			return &user, nil
		}
		// Unreadable entry: drop it and fall through to the inner store.
		c.client.Del(ctx, cacheKey(normalized))
	}

	user, err := c.Store.FindByNormalizedUserName(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(user); err == nil {
		c.client.Set(ctx, cacheKey(normalized), payload, c.ttl)
	}
	return user, nil
}

func (c *CachedStore) Update(ctx context.Context, userID id.UserID, changes models.UserChanges, expectedStamp string) (*models.User, error) {
	// The username key may change; remember the prior normalized form so
	// both entries can be invalidated.
	prior, _ := c.Store.FindByID(ctx, userID)

	updated, err := c.Store.Update(ctx, userID, changes, expectedStamp)
	if err != nil {
		return nil, err
	}

	keys := []string{cacheKey(updated.NormalizedUserName)}
	if prior != nil && prior.NormalizedUserName != updated.NormalizedUserName {
		keys = append(keys, cacheKey(prior.NormalizedUserName))
	}
	c.client.Del(ctx, keys...)
	return updated, nil
}

func (c *CachedStore) Delete(ctx context.Context, userID id.UserID) error {
	prior, _ := c.Store.FindByID(ctx, userID)

	if err := c.Store.Delete(ctx, userID); err != nil {
		return err
	}
	if prior != nil {
		c.client.Del(ctx, cacheKey(prior.NormalizedUserName))
	}
	return nil
}

var _ Store = (*CachedStore)(nil)
