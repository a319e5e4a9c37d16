package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewCacheRepository(client)
	ctx := context.Background()

	var miss map[string]string
	require.ErrorIs(t, repo.Get(ctx, "view:track:p1:t1", &miss), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "view:track:p1:t1", map[string]string{"title": "Promo"}, time.Minute))
	var got map[string]string
	require.NoError(t, repo.Get(ctx, "view:track:p1:t1", &got))
	assert.Equal(t, "Promo", got["title"])
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	s, client := newTestRedis(t)
	repo := NewCacheRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "view:track:p1:t1", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "view:track:p1:t2", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "view:track:p2:t9", 3, time.Minute))

	n, err := repo.DeleteByPattern(ctx, "view:track:p1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, s.Exists("view:track:p1:t1"))
	assert.True(t, s.Exists("view:track:p2:t9"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest int
	require.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
}

func TestProofRepositoryLifecycle(t *testing.T) {
	s, client := newTestRedis(t)
	repo := NewProofRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "p1", "hash-a", time.Hour))
	require.NoError(t, repo.Save(ctx, "p1", "hash-b", time.Hour))
	require.NoError(t, repo.Save(ctx, "p2", "hash-c", time.Hour))

	ok, err := repo.Exists(ctx, "p1", "hash-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "p2", "hash-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.RevokeProject(ctx, "p1"))
	ok, err = repo.Exists(ctx, "p1", "hash-b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.Exists("gate:p2:hash-c"))

	s.FastForward(2 * time.Hour)
	ok, err = repo.Exists(ctx, "p2", "hash-c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheRepositoryCounter(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewCacheRepository(client)
	ctx := context.Background()

	n, err := repo.Counter(ctx, "view:gen:p1")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Incr(ctx, "view:gen:p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Counter(ctx, "view:gen:p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
