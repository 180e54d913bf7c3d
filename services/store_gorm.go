package services

import (
	"context"
	"errors"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDuelStore persists duels in postgres. All conditional writes lean on
// WHERE guards plus RowsAffected so concurrent pollers race safely inside
// the database.
type GormDuelStore struct {
	DB *gorm.DB
}

func NewGormDuelStore(db *gorm.DB) *GormDuelStore {
	return &GormDuelStore{DB: db}
}

func (s *GormDuelStore) Create(ctx context.Context, duel *models.Duel) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants", "Problems").Create(duel).Error; err != nil {
			return err
		}
		for i := range duel.Participants {
			duel.Participants[i].ID = uuid.NewString()
			duel.Participants[i].DuelID = duel.DuelID
			duel.Participants[i].Position = i
		}
		if len(duel.Participants) > 0 {
			if err := tx.Create(&duel.Participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormDuelStore) Get(ctx context.Context, duelID string) (*models.Duel, error) {
	var duel models.Duel
	err := s.DB.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, joined_at ASC")
		}).
		Preload("Problems", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		First(&duel, "duel_id = ?", duelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDuelNotFound
	}
	if err != nil {
		return nil, err
	}
	duel.HydrateComputed()
	return &duel, nil
}

func (s *GormDuelStore) List(ctx context.Context, filter DuelListFilter) ([]models.Duel, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Duel{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Creator != "" {
		q = q.Where("creator_handle = ?", filter.Creator)
	}
	if filter.Handle != "" {
		q = q.Where("duel_id IN (?)",
			s.DB.Model(&models.DuelParticipant{}).Select("duel_id").Where("handle = ?", filter.Handle))
	}
	if !filter.IncludePrivate {
		q = q.Where("is_private = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var duels []models.Duel
	err := q.Order("created_at DESC").
		Limit(limit).Offset(filter.Skip).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, joined_at ASC")
		}).
		Find(&duels).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range duels {
		duels[i].HydrateComputed()
	}
	return duels, total, nil
}

func (s *GormDuelStore) Delete(ctx context.Context, duelID string) error {
	res := s.DB.WithContext(ctx).Where("duel_id = ?", duelID).Delete(&models.Duel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuelNotFound
	}
	return nil
}

func (s *GormDuelStore) AddParticipant(ctx context.Context, duelID, handle string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the duel row so concurrent joins assign positions serially;
		// position breaks score ties and must stay unambiguous.
		var duel models.Duel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("duel_id").
			First(&duel, "duel_id = ?", duelID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDuelNotFound
		}
		if err != nil {
			return err
		}
		var position int
		if err := tx.Model(&models.DuelParticipant{}).
			Where("duel_id = ?", duelID).
			Select("COALESCE(MAX(position)+1, 0)").
			Scan(&position).Error; err != nil {
			return err
		}
		participant := models.DuelParticipant{
			ID:       uuid.NewString(),
			DuelID:   duelID,
			Handle:   handle,
			Position: position,
			Score:    0,
		}
		// Re-joining is a no-op; the existing score survives.
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "duel_id"}, {Name: "handle"}},
			DoNothing: true,
		}).Create(&participant).Error
	})
}

func (s *GormDuelStore) SetProblems(ctx context.Context, duelID string, problems []models.DuelProblem) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Duel{}).
			Where("duel_id = ? AND problems_generated = ?", duelID, false).
			Update("problems_generated", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Duel{}).Where("duel_id = ?", duelID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrDuelNotFound
			}
			return ErrAlreadyGenerated
		}
		for i := range problems {
			problems[i].ID = uuid.NewString()
			problems[i].DuelID = duelID
			problems[i].SortOrder = i
		}
		if len(problems) == 0 {
			return nil
		}
		return tx.Create(&problems).Error
	})
}

func (s *GormDuelStore) SetScore(ctx context.Context, duelID, handle string, score int64) error {
	res := s.DB.WithContext(ctx).Model(&models.DuelParticipant{}).
		Where("duel_id = ? AND handle = ?", duelID, handle).
		Update("score", score)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotParticipant
	}
	return nil
}

func (s *GormDuelStore) AddScore(ctx context.Context, duelID, handle string, delta int64) error {
	res := s.DB.WithContext(ctx).Model(&models.DuelParticipant{}).
		Where("duel_id = ? AND handle = ?", duelID, handle).
		Update("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotParticipant
	}
	return nil
}

func (s *GormDuelStore) CreditProblem(ctx context.Context, credit models.ProblemCredit) (bool, error) {
	credited := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credit.ID = uuid.NewString()
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "duel_id"}, {Name: "problem_key"}, {Name: "handle"}},
			DoNothing: true,
		}).Create(&credit)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already credited by a concurrent check
		}
		credited = true
		if credit.Points == 0 {
			return nil
		}
		return tx.Model(&models.DuelParticipant{}).
			Where("duel_id = ? AND handle = ?", credit.DuelID, credit.Handle).
			Update("score", gorm.Expr("score + ?", credit.Points)).Error
	})
	return credited, err
}

func (s *GormDuelStore) Credits(ctx context.Context, duelID string) ([]models.ProblemCredit, error) {
	var credits []models.ProblemCredit
	err := s.DB.WithContext(ctx).
		Where("duel_id = ?", duelID).
		Order("created_at ASC").
		Find(&credits).Error
	return credits, err
}

func (s *GormDuelStore) TransitionStatus(ctx context.Context, duelID string, from []string, to string, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if col := transitionStamp(to); col != "" {
		// First write wins; a stamp set by an earlier transition never moves.
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", at)
	}
	res := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("duel_id = ? AND status IN ?", duelID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormDuelStore) BeginStart(ctx context.Context, duelID string, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("duel_id = ? AND status = ?", duelID, models.DuelStatusWaiting).
		Updates(map[string]interface{}{
			"status":               models.DuelStatusStarting,
			"scheduled_start_time": at.Add(models.StartingWindow),
			"starting_at":          gorm.Expr("COALESCE(starting_at, ?)", at),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormDuelStore) SetWinner(ctx context.Context, duelID, handle string) error {
	return s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("duel_id = ? AND (winner_handle IS NULL OR winner_handle = '')", duelID).
		Update("winner_handle", handle).Error
}

func (s *GormDuelStore) DuelsDue(ctx context.Context, now time.Time) ([]models.Duel, error) {
	var duels []models.Duel
	err := s.DB.WithContext(ctx).
		Where("status NOT IN ?", []string{models.DuelStatusCompleted, models.DuelStatusCancelled}).
		Where("scheduled_start_time <= ?", now.Add(models.StartingWindow)).
		Find(&duels).Error
	return duels, err
}
