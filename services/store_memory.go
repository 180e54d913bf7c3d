package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
)

// MemoryDuelStore keeps duels in process memory. It backs local development
// when no DATABASE_URL is configured and all of the service tests. The mutex
// makes every mutation as atomic as the gorm store's conditional writes.
type MemoryDuelStore struct {
	mu    sync.RWMutex
	duels map[string]*memDuel
}

type memDuel struct {
	duel         models.Duel
	participants []models.DuelParticipant
	problems     []models.DuelProblem
	credits      []models.ProblemCredit
	creditIdx    map[string]bool // problemKey + "|" + handle
}

func NewMemoryDuelStore() *MemoryDuelStore {
	return &MemoryDuelStore{duels: make(map[string]*memDuel)}
}

func creditKey(problemKey, handle string) string {
	return problemKey + "|" + handle
}

func (m *MemoryDuelStore) Create(ctx context.Context, duel *models.Duel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memDuel{
		duel:      *duel,
		creditIdx: make(map[string]bool),
	}
	entry.duel.Participants = nil
	entry.duel.Problems = nil
	entry.duel.CreatedAt = time.Now()
	for i, p := range duel.Participants {
		p.ID = uuid.NewString()
		p.DuelID = duel.DuelID
		p.Position = i
		p.JoinedAt = time.Now()
		entry.participants = append(entry.participants, p)
	}
	m.duels[duel.DuelID] = entry
	return nil
}

func (m *MemoryDuelStore) Get(ctx context.Context, duelID string) (*models.Duel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return nil, ErrDuelNotFound
	}
	return entry.snapshot(), nil
}

// snapshot returns a deep copy so callers never share state with the store.
func (e *memDuel) snapshot() *models.Duel {
	duel := e.duel
	duel.Participants = append([]models.DuelParticipant(nil), e.participants...)
	duel.Problems = append([]models.DuelProblem(nil), e.problems...)
	duel.HydrateComputed()
	return &duel
}

func (m *MemoryDuelStore) List(ctx context.Context, filter DuelListFilter) ([]models.Duel, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memDuel
	for _, entry := range m.duels {
		if filter.Status != "" && entry.duel.Status != filter.Status {
			continue
		}
		if filter.Creator != "" && entry.duel.CreatorHandle != filter.Creator {
			continue
		}
		if !filter.IncludePrivate && entry.duel.IsPrivate {
			continue
		}
		if filter.Handle != "" {
			found := false
			for _, p := range entry.participants {
				if p.Handle == filter.Handle {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, entry)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].duel.CreatedAt.After(matched[j].duel.CreatedAt)
	})

	total := int64(len(matched))
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	// Negative skip comes straight off the query string; treat it as zero
	// like the SQL path does.
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	if skip < len(matched) {
		matched = matched[skip:]
	} else {
		matched = nil
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	duels := make([]models.Duel, 0, len(matched))
	for _, entry := range matched {
		duels = append(duels, *entry.snapshot())
	}
	return duels, total, nil
}

func (m *MemoryDuelStore) Delete(ctx context.Context, duelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.duels[duelID]; !ok {
		return ErrDuelNotFound
	}
	delete(m.duels, duelID)
	return nil
}

func (m *MemoryDuelStore) AddParticipant(ctx context.Context, duelID, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return ErrDuelNotFound
	}
	for _, p := range entry.participants {
		if p.Handle == handle {
			return nil
		}
	}
	entry.participants = append(entry.participants, models.DuelParticipant{
		ID:       uuid.NewString(),
		DuelID:   duelID,
		Handle:   handle,
		Position: len(entry.participants),
		Score:    0,
		JoinedAt: time.Now(),
	})
	return nil
}

func (m *MemoryDuelStore) SetProblems(ctx context.Context, duelID string, problems []models.DuelProblem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return ErrDuelNotFound
	}
	if entry.duel.ProblemsGenerated {
		return ErrAlreadyGenerated
	}
	entry.duel.ProblemsGenerated = true
	for i, p := range problems {
		p.ID = uuid.NewString()
		p.DuelID = duelID
		p.SortOrder = i
		entry.problems = append(entry.problems, p)
	}
	return nil
}

func (m *MemoryDuelStore) SetScore(ctx context.Context, duelID, handle string, score int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return ErrNotParticipant
	}
	for i := range entry.participants {
		if entry.participants[i].Handle == handle {
			entry.participants[i].Score = score
			return nil
		}
	}
	return ErrNotParticipant
}

func (m *MemoryDuelStore) AddScore(ctx context.Context, duelID, handle string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return ErrNotParticipant
	}
	for i := range entry.participants {
		if entry.participants[i].Handle == handle {
			entry.participants[i].Score += delta
			return nil
		}
	}
	return ErrNotParticipant
}

func (m *MemoryDuelStore) CreditProblem(ctx context.Context, credit models.ProblemCredit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[credit.DuelID]
	if !ok {
		return false, ErrDuelNotFound
	}
	key := creditKey(credit.ProblemKey, credit.Handle)
	if entry.creditIdx[key] {
		return false, nil
	}
	entry.creditIdx[key] = true
	credit.ID = uuid.NewString()
	credit.CreatedAt = time.Now()
	entry.credits = append(entry.credits, credit)
	for i := range entry.participants {
		if entry.participants[i].Handle == credit.Handle {
			entry.participants[i].Score += credit.Points
			break
		}
	}
	return true, nil
}

func (m *MemoryDuelStore) Credits(ctx context.Context, duelID string) ([]models.ProblemCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return nil, nil
	}
	return append([]models.ProblemCredit(nil), entry.credits...), nil
}

func (m *MemoryDuelStore) TransitionStatus(ctx context.Context, duelID string, from []string, to string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if entry.duel.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	entry.duel.Status = to
	stampAt := at
	switch to {
	case models.DuelStatusStarting:
		if entry.duel.StartingAt == nil {
			entry.duel.StartingAt = &stampAt
		}
	case models.DuelStatusActive:
		if entry.duel.StartedAt == nil {
			entry.duel.StartedAt = &stampAt
		}
	case models.DuelStatusCompleted:
		if entry.duel.EndedAt == nil {
			entry.duel.EndedAt = &stampAt
		}
	}
	return true, nil
}

func (m *MemoryDuelStore) BeginStart(ctx context.Context, duelID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return false, nil
	}
	if entry.duel.Status != models.DuelStatusWaiting {
		return false, nil
	}
	entry.duel.Status = models.DuelStatusStarting
	entry.duel.ScheduledStartTime = at.Add(models.StartingWindow)
	if entry.duel.StartingAt == nil {
		stampAt := at
		entry.duel.StartingAt = &stampAt
	}
	return true, nil
}

func (m *MemoryDuelStore) SetWinner(ctx context.Context, duelID, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.duels[duelID]
	if !ok {
		return ErrDuelNotFound
	}
	if entry.duel.WinnerHandle == "" {
		entry.duel.WinnerHandle = handle
	}
	return nil
}

func (m *MemoryDuelStore) DuelsDue(ctx context.Context, now time.Time) ([]models.Duel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []models.Duel
	for _, entry := range m.duels {
		status := entry.duel.Status
		if status == models.DuelStatusCompleted || status == models.DuelStatusCancelled {
			continue
		}
		if entry.duel.ScheduledStartTime.After(now.Add(models.StartingWindow)) {
			continue
		}
		due = append(due, *entry.snapshot())
	}
	return due, nil
}
