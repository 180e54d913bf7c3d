package models

import (
	"crypto/rand"
	"time"

	"gorm.io/gorm"
)

// Duel status values. Transitions are monotonic along
// waiting → starting → active → completed; cancelled is terminal and only
// reachable from waiting or active.
const (
	DuelStatusWaiting   = "waiting"
	DuelStatusStarting  = "starting"
	DuelStatusActive    = "active"
	DuelStatusCompleted = "completed"
	DuelStatusCancelled = "cancelled"
)

// StartingWindow is the fixed pre-roll between "starting" and "active",
// advertised to clients as a countdown.
const StartingWindow = 10 * time.Second

// Duel is one competitive match between Codeforces handles.
type Duel struct {
	DuelID        string `json:"duel_id" gorm:"primaryKey;type:varchar(8)"`
	Name          string `json:"name" gorm:"not null"`
	Slug          string `json:"slug" gorm:"index"`
	CreatorHandle string `json:"creator_handle" gorm:"not null;index"`
	Status        string `json:"status" gorm:"type:varchar(16);default:'waiting';index"`
	IsPrivate     bool   `json:"is_private" gorm:"default:false"`

	// Problem generation parameters, immutable after creation.
	NumProblems       int  `json:"num_problems" gorm:"default:3"`
	MinRating         int  `json:"min_rating" gorm:"default:800"`
	MaxRating         int  `json:"max_rating" gorm:"default:3500"`
	ProblemsGenerated bool `json:"problems_generated" gorm:"default:false"`

	// Schedule. StartingAt/StartedAt/EndedAt are set once, on the first
	// transition into the corresponding status.
	ScheduledStartTime time.Time  `json:"scheduled_start_time" gorm:"not null"`
	DurationMinutes    int        `json:"duration_minutes" gorm:"default:60"`
	StartingAt         *time.Time `json:"starting_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`

	WinnerHandle string `json:"winner_handle,omitempty"`

	// Relationships
	Participants []DuelParticipant `json:"-" gorm:"foreignKey:DuelID;references:DuelID"`
	Problems     []DuelProblem     `json:"problems" gorm:"foreignKey:DuelID;references:DuelID"`

	// Calculated fields for responses (not stored in DB)
	Handles []string         `json:"handles" gorm:"-"`
	Scores  map[string]int64 `json:"scores" gorm:"-"`

	Timestamps
}

// DuelParticipant is one handle in a duel plus its cumulative score.
// Position records join order and breaks score ties.
type DuelParticipant struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	DuelID   string `json:"duel_id" gorm:"not null;uniqueIndex:idx_duel_participant"`
	Handle   string `json:"handle" gorm:"not null;uniqueIndex:idx_duel_participant"`
	Position int    `json:"position" gorm:"default:0"`
	Score    int64  `json:"score" gorm:"default:0"`

	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

// DuelProblem is one assigned problem. The set is written at most once.
type DuelProblem struct {
	ID        string `json:"-" gorm:"primaryKey;type:uuid"`
	DuelID    string `json:"-" gorm:"not null;index"`
	ContestID int    `json:"contest_id" gorm:"not null"`
	Index     string `json:"index" gorm:"column:problem_index;not null"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	SortOrder int    `json:"-" gorm:"default:0"`
}

// ProblemCredit marks that a handle has been credited for a problem in a
// duel. The unique index makes "credit if not already credited" a single
// conflict-guarded insert; rows are never updated or deleted.
type ProblemCredit struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	DuelID     string `gorm:"not null;uniqueIndex:idx_problem_credit" json:"duel_id"`
	ProblemKey string `gorm:"not null;uniqueIndex:idx_problem_credit" json:"problem_key"`
	Handle     string `gorm:"not null;uniqueIndex:idx_problem_credit" json:"handle"`
	Points     int64  `json:"points"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// duelIDAlphabet avoids characters that read ambiguously (0/O, 1/I/L).
const duelIDAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const duelIDLength = 8

// NewDuelID returns a shareable 8-character duel identifier.
func NewDuelID() string {
	b := make([]byte, duelIDLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = duelIDAlphabet[int(b[i])%len(duelIDAlphabet)]
	}
	return string(b)
}

// Key returns the catalog identifier for the problem, e.g. "1700A".
func (p DuelProblem) Key() string {
	return ProblemKey(p.ContestID, p.Index)
}

// HasHandle reports whether the handle participates in the duel.
// Participants must be loaded.
func (d *Duel) HasHandle(handle string) bool {
	for _, p := range d.Participants {
		if p.Handle == handle {
			return true
		}
	}
	return false
}

// EndsAt is the scheduled end of the active window.
func (d *Duel) EndsAt() time.Time {
	return d.ScheduledStartTime.Add(time.Duration(d.DurationMinutes) * time.Minute)
}

// EffectiveStatusAt derives the duel's status from the clock alone. It is a
// pure function of the schedule and the cancelled flag; stored status is
// never consulted except to honour the cancelled override.
func (d *Duel) EffectiveStatusAt(now time.Time) string {
	if d.Status == DuelStatusCancelled {
		return DuelStatusCancelled
	}
	switch {
	case now.Before(d.ScheduledStartTime):
		if d.ScheduledStartTime.Sub(now) <= StartingWindow {
			return DuelStatusStarting
		}
		return DuelStatusWaiting
	case !now.After(d.EndsAt()):
		return DuelStatusActive
	default:
		return DuelStatusCompleted
	}
}

// TimeUntilStartAt returns whole seconds until the scheduled start, floored
// at zero.
func (d *Duel) TimeUntilStartAt(now time.Time) int64 {
	until := d.ScheduledStartTime.Sub(now)
	if until < 0 {
		return 0
	}
	return int64(until / time.Second)
}

// RemainingTimeAt returns whole seconds left in the active window. Before
// the start it is the full duration; after the end it is zero.
func (d *Duel) RemainingTimeAt(now time.Time) int64 {
	if now.Before(d.ScheduledStartTime) {
		return int64(d.DurationMinutes) * 60
	}
	remaining := d.EndsAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// ElapsedTimeAt returns whole seconds since the scheduled start, capped at
// the duel duration.
func (d *Duel) ElapsedTimeAt(now time.Time) int64 {
	if now.Before(d.ScheduledStartTime) {
		return 0
	}
	elapsed := int64(now.Sub(d.ScheduledStartTime) / time.Second)
	if max := int64(d.DurationMinutes) * 60; elapsed > max {
		return max
	}
	return elapsed
}

// CountdownAt returns the seconds left in the starting window, or zero when
// the duel is not in it.
func (d *Duel) CountdownAt(now time.Time) int64 {
	if d.EffectiveStatusAt(now) != DuelStatusStarting {
		return 0
	}
	return d.TimeUntilStartAt(now)
}

// HydrateComputed fills the response-only Handles and Scores fields from the
// loaded participant rows.
func (d *Duel) HydrateComputed() {
	d.Handles = make([]string, 0, len(d.Participants))
	d.Scores = make(map[string]int64, len(d.Participants))
	for _, p := range d.Participants {
		d.Handles = append(d.Handles, p.Handle)
		d.Scores[p.Handle] = p.Score
	}
}
