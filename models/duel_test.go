package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDuelID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := NewDuelID()
		require.Len(t, id, 8)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(duelIDAlphabet, r), "unexpected character %q in %s", r, id)
		}
		seen[id] = true
	}
	// 200 draws from a 32^8 space should essentially never collide.
	assert.Greater(t, len(seen), 195)
}

func scheduledDuel(start time.Time, durationMinutes int) *Duel {
	return &Duel{
		DuelID:             NewDuelID(),
		Status:             DuelStatusWaiting,
		ScheduledStartTime: start,
		DurationMinutes:    durationMinutes,
	}
}

func TestEffectiveStatusAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duel := scheduledDuel(start, 60)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"well before start", start.Add(-time.Hour), DuelStatusWaiting},
		{"just outside window", start.Add(-StartingWindow - time.Second), DuelStatusWaiting},
		{"window boundary", start.Add(-StartingWindow), DuelStatusStarting},
		{"inside window", start.Add(-time.Second), DuelStatusStarting},
		{"at start", start, DuelStatusActive},
		{"mid duel", start.Add(30 * time.Minute), DuelStatusActive},
		{"at end", start.Add(60 * time.Minute), DuelStatusActive},
		{"past end", start.Add(60*time.Minute + time.Second), DuelStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, duel.EffectiveStatusAt(tt.now))
		})
	}
}

func TestEffectiveStatusAtCancelledOverride(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duel := scheduledDuel(start, 60)
	duel.Status = DuelStatusCancelled

	for _, now := range []time.Time{
		start.Add(-time.Hour),
		start.Add(-time.Second),
		start.Add(30 * time.Minute),
		start.Add(2 * time.Hour),
	} {
		assert.Equal(t, DuelStatusCancelled, duel.EffectiveStatusAt(now))
	}
}

func TestTimingHelpers(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duel := scheduledDuel(start, 60)

	assert.Equal(t, int64(90), duel.TimeUntilStartAt(start.Add(-90*time.Second)))
	assert.Equal(t, int64(0), duel.TimeUntilStartAt(start.Add(time.Minute)), "floors at zero after start")

	assert.Equal(t, int64(3600), duel.RemainingTimeAt(start.Add(-time.Hour)), "full duration before start")
	assert.Equal(t, int64(1800), duel.RemainingTimeAt(start.Add(30*time.Minute)))
	assert.Equal(t, int64(0), duel.RemainingTimeAt(start.Add(2*time.Hour)))

	assert.Equal(t, int64(0), duel.ElapsedTimeAt(start.Add(-time.Minute)))
	assert.Equal(t, int64(600), duel.ElapsedTimeAt(start.Add(10*time.Minute)))
	assert.Equal(t, int64(3600), duel.ElapsedTimeAt(start.Add(5*time.Hour)), "caps at duration")

	assert.Equal(t, int64(0), duel.CountdownAt(start.Add(-time.Hour)))
	assert.Equal(t, int64(7), duel.CountdownAt(start.Add(-7*time.Second)))
	assert.Equal(t, int64(0), duel.CountdownAt(start.Add(time.Minute)))
}

func TestEndsAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duel := scheduledDuel(start, 45)
	assert.Equal(t, start.Add(45*time.Minute), duel.EndsAt())
}

func TestHydrateComputedAndHasHandle(t *testing.T) {
	duel := scheduledDuel(time.Now(), 60)
	duel.Participants = []DuelParticipant{
		{Handle: "alice", Position: 0, Score: 800},
		{Handle: "bob", Position: 1, Score: 0},
	}
	duel.HydrateComputed()

	assert.Equal(t, []string{"alice", "bob"}, duel.Handles)
	assert.Equal(t, map[string]int64{"alice": 800, "bob": 0}, duel.Scores)
	assert.True(t, duel.HasHandle("bob"))
	assert.False(t, duel.HasHandle("carol"))
}

func TestProblemKey(t *testing.T) {
	assert.Equal(t, "1700A", ProblemKey(1700, "A"))
	assert.Equal(t, "1700A", DuelProblem{ContestID: 1700, Index: "A"}.Key())
	assert.Equal(t, "231B2", CatalogProblem{ContestID: 231, Index: "B2"}.Key())
}
