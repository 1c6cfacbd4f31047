//go:build integration

package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idstore/internal/identity/models"
	"idstore/internal/identity/store/user"
	"idstore/pkg/platform/sentinel"
	"idstore/pkg/testutil/containers"
)

type CachedStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	inner *user.InMemory
	store *user.CachedStore
}

func TestCachedStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.inner = user.NewInMemory()
	s.store = user.NewCached(s.inner, s.redis.Client, time.Minute)
}

func (s *CachedStoreSuite) seed(userName, email string) *models.User {
	u, err := models.NewUser(userName, email, "",
		models.FullName{FirstName: "Test", LastName: "User"}, time.Now(), "")
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), u))
	return u
}

// TestReadThrough verifies a miss populates the cache and a hit is served
// without touching the inner store.
func (s *CachedStoreSuite) TestReadThrough() {
	ctx := context.Background()
	created := s.seed("alice", "a@x.com")

	found, err := s.store.FindByNormalizedUserName(ctx, "ALICE")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	keys, err := s.redis.Client.Keys(ctx, "idstore:user:*").Result()
	s.Require().NoError(err)
	s.Len(keys, 1)

	// Remove the record behind the cache's back; the cached entry still
	// serves within its TTL.
	s.Require().NoError(s.inner.Delete(ctx, created.ID))

	cached, err := s.store.FindByNormalizedUserName(ctx, "ALICE")
	s.Require().NoError(err)
	s.Equal(created.ID, cached.ID)
	s.Equal(created.ConcurrencyStamp, cached.ConcurrencyStamp)
}

// TestMissIsNotCached verifies lookup failures pass through uncached.
func (s *CachedStoreSuite) TestMissIsNotCached() {
	ctx := context.Background()

	_, err := s.store.FindByNormalizedUserName(ctx, "NOBODY")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	keys, err := s.redis.Client.Keys(ctx, "idstore:user:*").Result()
	s.Require().NoError(err)
	s.Empty(keys)
}

// TestUpdateInvalidatesBothKeys verifies a username change evicts the old
// and new cache entries so neither serves stale data.
func (s *CachedStoreSuite) TestUpdateInvalidatesBothKeys() {
	ctx := context.Background()
	created := s.seed("bob", "b@x.com")

	// Warm the cache under the old name.
	_, err := s.store.FindByNormalizedUserName(ctx, "BOB")
	s.Require().NoError(err)

	newName := "robert"
	updated, err := s.store.Update(ctx, created.ID, models.UserChanges{UserName: &newName}, created.ConcurrencyStamp)
	s.Require().NoError(err)
	s.Equal("ROBERT", updated.NormalizedUserName)

	keys, err := s.redis.Client.Keys(ctx, "idstore:user:*").Result()
	s.Require().NoError(err)
	s.Empty(keys)

	_, err = s.store.FindByNormalizedUserName(ctx, "BOB")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByNormalizedUserName(ctx, "ROBERT")
	s.Require().NoError(err)
	s.Equal(updated.ConcurrencyStamp, found.ConcurrencyStamp)
}

// TestDeleteInvalidates verifies a delete evicts the cached entry.
func (s *CachedStoreSuite) TestDeleteInvalidates() {
	ctx := context.Background()
	created := s.seed("carol", "c@x.com")

	_, err := s.store.FindByNormalizedUserName(ctx, "CAROL")
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(ctx, created.ID))

	keys, err := s.redis.Client.Keys(ctx, "idstore:user:*").Result()
	s.Require().NoError(err)
	s.Empty(keys)

	_, err = s.store.FindByNormalizedUserName(ctx, "CAROL")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestCorruptEntryFallsBack verifies an unreadable cache payload is dropped
// and the inner store answers.
func (s *CachedStoreSuite) TestCorruptEntryFallsBack() {
	ctx := context.Background()
	created := s.seed("dave", "d@x.com")

	s.Require().NoError(s.redis.Client.Set(ctx, "idstore:user:nuname:DAVE", "not-json", time.Minute).Err())

	found, err := s.store.FindByNormalizedUserName(ctx, "DAVE")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)
}
