package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"duel-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredDuel(t *testing.T, store *MemoryDuelStore, handles ...string) *models.Duel {
	t.Helper()
	duel := &models.Duel{
		DuelID:             models.NewDuelID(),
		Name:               "Test Duel",
		Slug:               "test-duel",
		CreatorHandle:      handles[0],
		Status:             models.DuelStatusWaiting,
		NumProblems:        2,
		MinRating:          800,
		MaxRating:          1600,
		ScheduledStartTime: time.Now().Add(time.Hour),
		DurationMinutes:    60,
	}
	for _, handle := range handles {
		duel.Participants = append(duel.Participants, models.DuelParticipant{Handle: handle})
	}
	require.NoError(t, store.Create(context.Background(), duel))
	return duel
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice", "bob")

	got, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, duel.DuelID, got.DuelID)
	assert.Equal(t, []string{"alice", "bob"}, got.Handles)
	assert.Equal(t, map[string]int64{"alice": 0, "bob": 0}, got.Scores)
	assert.Equal(t, 0, got.Participants[0].Position)
	assert.Equal(t, 1, got.Participants[1].Position)

	_, err = store.Get(context.Background(), "NOPE1234")
	assert.ErrorIs(t, err, ErrDuelNotFound)
}

func TestMemoryStoreGetReturnsSnapshot(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")

	first, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	first.Participants[0].Score = 999
	first.Status = models.DuelStatusCancelled

	second, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Participants[0].Score)
	assert.Equal(t, models.DuelStatusWaiting, second.Status)
}

func TestMemoryStoreAddParticipantIdempotent(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")

	require.NoError(t, store.AddParticipant(context.Background(), duel.DuelID, "bob"))
	require.NoError(t, store.AddParticipant(context.Background(), duel.DuelID, "bob"))

	got, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Handles)
	assert.Equal(t, int64(0), got.Scores["bob"])
	assert.Equal(t, 1, got.Participants[1].Position)
}

func TestMemoryStoreSetProblemsAtMostOnce(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")
	problems := []models.DuelProblem{
		{ContestID: 1700, Index: "A", Name: "Alpha", Rating: 900},
		{ContestID: 1800, Index: "B", Name: "Beta", Rating: 1100},
	}

	require.NoError(t, store.SetProblems(context.Background(), duel.DuelID, problems))
	err := store.SetProblems(context.Background(), duel.DuelID, problems[:1])
	assert.ErrorIs(t, err, ErrAlreadyGenerated)

	got, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.True(t, got.ProblemsGenerated)
	require.Len(t, got.Problems, 2)
	assert.Equal(t, "1700A", got.Problems[0].Key())
	assert.Equal(t, 1, got.Problems[1].SortOrder)
}

func TestMemoryStoreScores(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice", "bob")

	require.NoError(t, store.SetScore(context.Background(), duel.DuelID, "alice", 500))
	require.NoError(t, store.AddScore(context.Background(), duel.DuelID, "alice", 300))
	assert.ErrorIs(t, store.SetScore(context.Background(), duel.DuelID, "carol", 1), ErrNotParticipant)

	got, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), got.Scores["alice"])
	assert.Equal(t, int64(0), got.Scores["bob"])
}

func TestMemoryStoreCreditProblemAtMostOnce(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice", "bob")
	credit := models.ProblemCredit{
		DuelID:     duel.DuelID,
		ProblemKey: "1700A",
		Handle:     "alice",
		Points:     900,
	}

	won, err := store.CreditProblem(context.Background(), credit)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.CreditProblem(context.Background(), credit)
	require.NoError(t, err)
	assert.False(t, won, "second credit for the same pair must lose")

	// Same problem, different handle is a distinct pair.
	credit.Handle = "bob"
	won, err = store.CreditProblem(context.Background(), credit)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := store.Get(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.Scores["alice"], "points applied exactly once")
	assert.Equal(t, int64(900), got.Scores["bob"])

	credits, err := store.Credits(context.Background(), duel.DuelID)
	require.NoError(t, err)
	assert.Len(t, credits, 2)
}

func TestMemoryStoreTransitionStatusCAS(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")
	ctx := context.Background()

	swapped, err := store.TransitionStatus(ctx, duel.DuelID,
		[]string{models.DuelStatusStarting}, models.DuelStatusActive, time.Now())
	require.NoError(t, err)
	assert.False(t, swapped, "stored status is waiting, guard must not match")

	at := time.Now()
	swapped, err = store.TransitionStatus(ctx, duel.DuelID,
		[]string{models.DuelStatusWaiting}, models.DuelStatusActive, at)
	require.NoError(t, err)
	assert.True(t, swapped)

	got, err := store.Get(ctx, duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusActive, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, at, *got.StartedAt)

	// Terminal statuses never appear in a guard list, so a completed duel
	// cannot be moved again.
	swapped, err = store.TransitionStatus(ctx, duel.DuelID,
		[]string{models.DuelStatusActive}, models.DuelStatusCompleted, time.Now())
	require.NoError(t, err)
	assert.True(t, swapped)
	swapped, err = store.TransitionStatus(ctx, duel.DuelID,
		[]string{models.DuelStatusWaiting, models.DuelStatusActive}, models.DuelStatusCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestMemoryStoreBeginStart(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")
	ctx := context.Background()
	at := time.Now()

	swapped, err := store.BeginStart(ctx, duel.DuelID, at)
	require.NoError(t, err)
	assert.True(t, swapped)

	got, err := store.Get(ctx, duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusStarting, got.Status)
	assert.Equal(t, at.Add(models.StartingWindow), got.ScheduledStartTime, "schedule pulled forward to now+window")
	require.NotNil(t, got.StartingAt)

	swapped, err = store.BeginStart(ctx, duel.DuelID, time.Now())
	require.NoError(t, err)
	assert.False(t, swapped, "start is only valid from waiting")
}

func TestMemoryStoreSetWinnerFirstWriteWins(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, store.SetWinner(ctx, duel.DuelID, "alice"))
	require.NoError(t, store.SetWinner(ctx, duel.DuelID, "bob"))

	got, err := store.Get(ctx, duel.DuelID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.WinnerHandle)
}

func TestMemoryStoreDuelsDue(t *testing.T) {
	store := NewMemoryDuelStore()
	ctx := context.Background()
	now := time.Now()

	due := newStoredDuel(t, store, "alice")
	_, err := store.BeginStart(ctx, due.DuelID, now.Add(-time.Minute))
	require.NoError(t, err)

	far := newStoredDuel(t, store, "bob") // scheduled an hour out
	done := newStoredDuel(t, store, "carol")
	_, err = store.TransitionStatus(ctx, done.DuelID,
		[]string{models.DuelStatusWaiting}, models.DuelStatusCompleted, now)
	require.NoError(t, err)

	duels, err := store.DuelsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, duels, 1)
	assert.Equal(t, due.DuelID, duels[0].DuelID)
	assert.NotEqual(t, far.DuelID, duels[0].DuelID)
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryDuelStore()
	ctx := context.Background()

	open := newStoredDuel(t, store, "alice", "bob")
	hidden := newStoredDuel(t, store, "carol")
	_, err := store.TransitionStatus(ctx, hidden.DuelID,
		[]string{models.DuelStatusWaiting}, models.DuelStatusActive, time.Now())
	require.NoError(t, err)

	private := &models.Duel{
		DuelID:             models.NewDuelID(),
		Name:               "Private Duel",
		CreatorHandle:      "dave",
		Status:             models.DuelStatusWaiting,
		IsPrivate:          true,
		ScheduledStartTime: time.Now().Add(time.Hour),
		DurationMinutes:    60,
		Participants:       []models.DuelParticipant{{Handle: "dave"}},
	}
	require.NoError(t, store.Create(ctx, private))

	duels, total, err := store.List(ctx, DuelListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "private duels hidden by default")

	duels, total, err = store.List(ctx, DuelListFilter{IncludePrivate: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	duels, total, err = store.List(ctx, DuelListFilter{Status: models.DuelStatusActive, IncludePrivate: true})
	require.NoError(t, err)
	require.Len(t, duels, 1)
	assert.Equal(t, hidden.DuelID, duels[0].DuelID)

	duels, total, err = store.List(ctx, DuelListFilter{Handle: "bob", IncludePrivate: true})
	require.NoError(t, err)
	require.Len(t, duels, 1)
	assert.Equal(t, open.DuelID, duels[0].DuelID)

	duels, total, err = store.List(ctx, DuelListFilter{Creator: "dave", IncludePrivate: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	duels, _, err = store.List(ctx, DuelListFilter{IncludePrivate: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, duels, 2)
}

func TestMemoryStoreListNegativeSkip(t *testing.T) {
	store := NewMemoryDuelStore()
	newStoredDuel(t, store, "alice")
	newStoredDuel(t, store, "bob")

	duels, total, err := store.List(context.Background(), DuelListFilter{Skip: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, duels, 2, "negative skip reads from the beginning")
}

func TestMemoryStoreConcurrentJoinsKeepPositionsUnique(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")
	ctx := context.Background()

	handles := []string{"bob", "carol", "dave", "erin", "frank"}
	var wg sync.WaitGroup
	for _, handle := range handles {
		wg.Add(1)
		go func(handle string) {
			defer wg.Done()
			assert.NoError(t, store.AddParticipant(ctx, duel.DuelID, handle))
		}(handle)
	}
	wg.Wait()

	got, err := store.Get(ctx, duel.DuelID)
	require.NoError(t, err)
	require.Len(t, got.Participants, len(handles)+1)

	seen := make(map[int]bool)
	for _, p := range got.Participants {
		assert.False(t, seen[p.Position], "position %d assigned twice", p.Position)
		seen[p.Position] = true
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryDuelStore()
	duel := newStoredDuel(t, store, "alice")
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, duel.DuelID))
	assert.ErrorIs(t, store.Delete(ctx, duel.DuelID), ErrDuelNotFound)
	_, err := store.Get(ctx, duel.DuelID)
	assert.ErrorIs(t, err, ErrDuelNotFound)
}
