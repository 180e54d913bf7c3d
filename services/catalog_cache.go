package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"duel-arena/models"

	"github.com/redis/go-redis/v9"
)

const catalogCacheTTL = 10 * time.Minute

// CachedCatalogStore fronts a CatalogStore with a redis cache for the hot
// path: rating-range queries issued by the problem selector on every
// generate-problems call. Writes invalidate by version bump rather than key
// enumeration. Cache trouble is never an error; the inner store answers.
type CachedCatalogStore struct {
	inner CatalogStore
	rdb   *redis.Client
}

func NewCachedCatalogStore(inner CatalogStore, rdb *redis.Client) *CachedCatalogStore {
	return &CachedCatalogStore{inner: inner, rdb: rdb}
}

func (s *CachedCatalogStore) keyVersion() string { return "catalog:version" }

func (s *CachedCatalogStore) keyRange(version int64, minRating, maxRating int) string {
	return fmt.Sprintf("catalog:v%d:range:%d-%d", version, minRating, maxRating)
}

func (s *CachedCatalogStore) version(ctx context.Context) int64 {
	v, err := s.rdb.Get(ctx, s.keyVersion()).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (s *CachedCatalogStore) UpsertProblems(ctx context.Context, problems []models.CatalogProblem) (int, error) {
	written, err := s.inner.UpsertProblems(ctx, problems)
	if err != nil {
		return written, err
	}
	if written > 0 {
		if incrErr := s.rdb.Incr(ctx, s.keyVersion()).Err(); incrErr != nil {
			log.Printf("[CATALOG] cache version bump failed: %v", incrErr)
		}
	}
	return written, nil
}

func (s *CachedCatalogStore) ProblemsInRange(ctx context.Context, minRating, maxRating int) ([]models.CatalogProblem, error) {
	key := s.keyRange(s.version(ctx), minRating, maxRating)

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []models.CatalogProblem
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		log.Printf("[CATALOG] cache read failed: %v", err)
	}

	problems, err := s.inner.ProblemsInRange(ctx, minRating, maxRating)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(problems); jsonErr == nil {
		if setErr := s.rdb.Set(ctx, key, raw, catalogCacheTTL).Err(); setErr != nil {
			log.Printf("[CATALOG] cache write failed: %v", setErr)
		}
	}
	return problems, nil
}

func (s *CachedCatalogStore) FilterProblems(ctx context.Context, filter CatalogFilter) ([]models.CatalogProblem, int64, error) {
	return s.inner.FilterProblems(ctx, filter)
}

func (s *CachedCatalogStore) Count(ctx context.Context) (int64, error) {
	return s.inner.Count(ctx)
}
