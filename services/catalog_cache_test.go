package services

import (
	"context"
	"testing"

	"duel-arena/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedCatalog(t *testing.T) (*CachedCatalogStore, *MemoryCatalogStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	inner := NewMemoryCatalogStore()
	return NewCachedCatalogStore(inner, rdb), inner, mr
}

func TestCachedCatalogServesFromCache(t *testing.T) {
	cached, inner, _ := newCachedCatalog(t)
	ctx := context.Background()

	_, err := cached.UpsertProblems(ctx, []models.CatalogProblem{
		catalogProblem(100, "A", 900),
	})
	require.NoError(t, err)

	problems, err := cached.ProblemsInRange(ctx, 800, 1600)
	require.NoError(t, err)
	require.Len(t, problems, 1)

	// Write behind the cache's back: no version bump, so the stale entry
	// keeps answering.
	_, err = inner.UpsertProblems(ctx, []models.CatalogProblem{
		catalogProblem(200, "B", 1000),
	})
	require.NoError(t, err)

	problems, err = cached.ProblemsInRange(ctx, 800, 1600)
	require.NoError(t, err)
	assert.Len(t, problems, 1, "second read is a cache hit")
}

func TestCachedCatalogInvalidatesOnUpsert(t *testing.T) {
	cached, _, _ := newCachedCatalog(t)
	ctx := context.Background()

	_, err := cached.UpsertProblems(ctx, []models.CatalogProblem{
		catalogProblem(100, "A", 900),
	})
	require.NoError(t, err)

	problems, err := cached.ProblemsInRange(ctx, 800, 1600)
	require.NoError(t, err)
	require.Len(t, problems, 1)

	_, err = cached.UpsertProblems(ctx, []models.CatalogProblem{
		catalogProblem(200, "B", 1000),
	})
	require.NoError(t, err)

	problems, err = cached.ProblemsInRange(ctx, 800, 1600)
	require.NoError(t, err)
	assert.Len(t, problems, 2, "version bump routed the read past the stale entry")
}

func TestCachedCatalogToleratesRedisOutage(t *testing.T) {
	cached, inner, mr := newCachedCatalog(t)
	ctx := context.Background()

	_, err := inner.UpsertProblems(ctx, []models.CatalogProblem{
		catalogProblem(100, "A", 900),
	})
	require.NoError(t, err)

	mr.Close()

	problems, err := cached.ProblemsInRange(ctx, 800, 1600)
	require.NoError(t, err, "cache trouble must not surface")
	assert.Len(t, problems, 1)

	count, err := cached.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCachedCatalogPassthrough(t *testing.T) {
	cached, inner, _ := newCachedCatalog(t)
	ctx := context.Background()

	_, err := inner.UpsertProblems(ctx, []models.CatalogProblem{
		catalogProblem(100, "A", 900),
		catalogProblem(200, "B", 2400),
	})
	require.NoError(t, err)

	problems, total, err := cached.FilterProblems(ctx, CatalogFilter{MinRating: 2000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, problems, 1)
	assert.Equal(t, "200B", problems[0].Key())
}
