package services

import (
	"context"
	"time"

	"duel-arena/models"
)

// DuelListFilter narrows List queries. Zero values mean "no filter".
type DuelListFilter struct {
	Status         string
	Handle         string
	Creator        string
	IncludePrivate bool
	Limit          int
	Skip           int
}

// DuelStore is the persistence contract for duels. Every mutation is a
// targeted, conditional write: callers never read a full record, change it
// in memory and write it back, so concurrent pollers cannot clobber each
// other. Two implementations exist: postgres/gorm for real deployments and
// an in-memory one for dev mode and tests.
type DuelStore interface {
	Create(ctx context.Context, duel *models.Duel) error
	// Get loads a duel with participants (join order) and problems, or
	// ErrDuelNotFound.
	Get(ctx context.Context, duelID string) (*models.Duel, error)
	List(ctx context.Context, filter DuelListFilter) ([]models.Duel, int64, error)
	Delete(ctx context.Context, duelID string) error

	// AddParticipant is idempotent and seeds the handle's score at 0 in the
	// same write.
	AddParticipant(ctx context.Context, duelID, handle string) error
	// SetProblems assigns the problem set at most once; a second call fails
	// with ErrAlreadyGenerated.
	SetProblems(ctx context.Context, duelID string, problems []models.DuelProblem) error
	// SetScore is a per-key upsert of a single participant's score.
	SetScore(ctx context.Context, duelID, handle string, score int64) error
	// AddScore atomically increments a single participant's score.
	AddScore(ctx context.Context, duelID, handle string, delta int64) error
	// CreditProblem records that handle solved problemKey and applies the
	// points, unless the pair was already credited. Reports whether this
	// call won the credit.
	CreditProblem(ctx context.Context, credit models.ProblemCredit) (bool, error)
	Credits(ctx context.Context, duelID string) ([]models.ProblemCredit, error)

	// TransitionStatus is a compare-and-swap: move the duel to `to` only if
	// its stored status is one of `from`, stamping the matching transition
	// timestamp if it is still unset. Reports whether the swap happened.
	TransitionStatus(ctx context.Context, duelID string, from []string, to string, at time.Time) (bool, error)
	// BeginStart is the explicit creator-triggered start: if the duel is
	// still waiting, its scheduled start is pulled forward to at+10s and the
	// status flips to starting. Reports whether the swap happened.
	BeginStart(ctx context.Context, duelID string, at time.Time) (bool, error)
	// SetWinner records the winning handle, first write wins.
	SetWinner(ctx context.Context, duelID, handle string) error

	// DuelsDue returns non-terminal duels whose next time boundary has been
	// reached, for the background sweeper.
	DuelsDue(ctx context.Context, now time.Time) ([]models.Duel, error)
}

// transitionStamp maps a target status to the timestamp column pinned on
// first entry.
func transitionStamp(to string) string {
	switch to {
	case models.DuelStatusStarting:
		return "starting_at"
	case models.DuelStatusActive:
		return "started_at"
	case models.DuelStatusCompleted:
		return "ended_at"
	default:
		return ""
	}
}
