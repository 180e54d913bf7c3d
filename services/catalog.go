package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"duel-arena/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogFilter narrows catalog listings.
type CatalogFilter struct {
	MinRating int
	MaxRating int
	Tag       string
	Limit     int
	Skip      int
}

// CatalogStore holds the local mirror of the judge's problemset. The sync
// worker writes it; the selector and the catalog endpoints read it.
type CatalogStore interface {
	// UpsertProblems inserts new problems and refreshes known ones. Returns
	// how many rows were written.
	UpsertProblems(ctx context.Context, problems []models.CatalogProblem) (int, error)
	ProblemsInRange(ctx context.Context, minRating, maxRating int) ([]models.CatalogProblem, error)
	FilterProblems(ctx context.Context, filter CatalogFilter) ([]models.CatalogProblem, int64, error)
	Count(ctx context.Context) (int64, error)
}

// GormCatalogStore mirrors the problemset in postgres.
type GormCatalogStore struct {
	DB *gorm.DB
}

func NewGormCatalogStore(db *gorm.DB) *GormCatalogStore {
	return &GormCatalogStore{DB: db}
}

func (s *GormCatalogStore) UpsertProblems(ctx context.Context, problems []models.CatalogProblem) (int, error) {
	if len(problems) == 0 {
		return 0, nil
	}
	written := 0
	// Batched so a full problemset refresh (~10k rows) stays well under
	// postgres parameter limits.
	const batchSize = 500
	for start := 0; start < len(problems); start += batchSize {
		end := start + batchSize
		if end > len(problems) {
			end = len(problems)
		}
		batch := problems[start:end]
		res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "contest_id"}, {Name: "problem_index"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "type", "rating", "points", "tags", "updated_at",
			}),
		}).Create(&batch)
		if res.Error != nil {
			return written, res.Error
		}
		written += int(res.RowsAffected)
	}
	return written, nil
}

func (s *GormCatalogStore) ProblemsInRange(ctx context.Context, minRating, maxRating int) ([]models.CatalogProblem, error) {
	var problems []models.CatalogProblem
	err := s.DB.WithContext(ctx).
		Where("rating >= ? AND rating <= ?", minRating, maxRating).
		Find(&problems).Error
	return problems, err
}

func (s *GormCatalogStore) FilterProblems(ctx context.Context, filter CatalogFilter) ([]models.CatalogProblem, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.CatalogProblem{})
	if filter.MinRating > 0 {
		q = q.Where("rating >= ?", filter.MinRating)
	}
	if filter.MaxRating > 0 {
		q = q.Where("rating <= ?", filter.MaxRating)
	}
	if filter.Tag != "" {
		q = q.Where("tags LIKE ?", "%"+filter.Tag+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var problems []models.CatalogProblem
	err := q.Order("contest_id DESC, problem_index ASC").
		Limit(limit).Offset(filter.Skip).
		Find(&problems).Error
	return problems, total, err
}

func (s *GormCatalogStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.CatalogProblem{}).Count(&count).Error
	return count, err
}

// MemoryCatalogStore is the in-process mirror used when no DATABASE_URL is
// configured, and by tests.
type MemoryCatalogStore struct {
	mu       sync.RWMutex
	problems map[string]models.CatalogProblem
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{problems: make(map[string]models.CatalogProblem)}
}

func (s *MemoryCatalogStore) UpsertProblems(ctx context.Context, problems []models.CatalogProblem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range problems {
		s.problems[p.Key()] = p
	}
	return len(problems), nil
}

func (s *MemoryCatalogStore) ProblemsInRange(ctx context.Context, minRating, maxRating int) ([]models.CatalogProblem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.CatalogProblem
	for _, p := range s.problems {
		if p.Rating >= minRating && p.Rating <= maxRating {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key() < matched[j].Key() })
	return matched, nil
}

func (s *MemoryCatalogStore) FilterProblems(ctx context.Context, filter CatalogFilter) ([]models.CatalogProblem, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.CatalogProblem
	for _, p := range s.problems {
		if filter.MinRating > 0 && p.Rating < filter.MinRating {
			continue
		}
		if filter.MaxRating > 0 && p.Rating > filter.MaxRating {
			continue
		}
		if filter.Tag != "" && !strings.Contains(p.Tags, filter.Tag) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ContestID != matched[j].ContestID {
			return matched[i].ContestID > matched[j].ContestID
		}
		return matched[i].Index < matched[j].Index
	})

	total := int64(len(matched))
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	if skip < len(matched) {
		matched = matched[skip:]
	} else {
		matched = nil
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryCatalogStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.problems)), nil
}
