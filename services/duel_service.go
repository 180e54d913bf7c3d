package services

import (
	"fmt"
	"time"

	"duel-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
)

// DuelService carries the Match API handlers. Lifecycle transitions and
// scoring are delegated; this layer parses, validates and shapes responses.
type DuelService struct {
	Store     DuelStore
	Lifecycle *Lifecycle
	Scorer    *Scorer
	Tasks     *TaskService
}

func NewDuelService(store DuelStore, lifecycle *Lifecycle, scorer *Scorer, tasks *TaskService) *DuelService {
	return &DuelService{Store: store, Lifecycle: lifecycle, Scorer: scorer, Tasks: tasks}
}

type createDuelRequest struct {
	Name                string   `json:"name"`
	Handles             []string `json:"handles"`
	CreatorHandle       string   `json:"creatorHandle"`
	ScheduledStartTime  string   `json:"scheduledStartTime"`
	DuelDurationMinutes *int     `json:"duelDurationMinutes"`
	NumProblems         *int     `json:"numProblems"`
	MinRating           *int     `json:"minRating"`
	MaxRating           *int     `json:"maxRating"`
	IsPrivate           bool     `json:"isPrivate"`
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func (s *DuelService) CreateDuel(c *fiber.Ctx) error {
	var req createDuelRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fmt.Errorf("%w: malformed body", ErrValidation))
	}

	if req.Name == "" || len(req.Handles) == 0 || req.CreatorHandle == "" {
		return respondError(c, fmt.Errorf("%w: name, handles and creatorHandle are required", ErrValidation))
	}

	scheduledStart, err := time.Parse(time.RFC3339, req.ScheduledStartTime)
	if err != nil {
		return respondError(c, fmt.Errorf("%w: invalid scheduledStartTime (use RFC3339)", ErrValidation))
	}
	if !scheduledStart.After(time.Now()) {
		return respondError(c, fmt.Errorf("%w: scheduledStartTime must be in the future", ErrValidation))
	}

	duration := intOrDefault(req.DuelDurationMinutes, 60)
	if duration < 5 || duration > 300 {
		return respondError(c, fmt.Errorf("%w: duelDurationMinutes must be between 5 and 300", ErrValidation))
	}
	numProblems := intOrDefault(req.NumProblems, 3)
	if numProblems < 1 || numProblems > 10 {
		return respondError(c, fmt.Errorf("%w: numProblems must be between 1 and 10", ErrValidation))
	}
	minRating := intOrDefault(req.MinRating, 800)
	maxRating := intOrDefault(req.MaxRating, 3500)
	if minRating > maxRating {
		return respondError(c, fmt.Errorf("%w: minRating must not exceed maxRating", ErrValidation))
	}

	// The creator always participates; duplicates collapse, order kept.
	handles := make([]string, 0, len(req.Handles)+1)
	seen := make(map[string]bool)
	for _, handle := range append(append([]string{}, req.Handles...), req.CreatorHandle) {
		if handle == "" || seen[handle] {
			continue
		}
		seen[handle] = true
		handles = append(handles, handle)
	}

	duel := &models.Duel{
		DuelID:             models.NewDuelID(),
		Name:               req.Name,
		Slug:               slug.Make(req.Name),
		CreatorHandle:      req.CreatorHandle,
		Status:             models.DuelStatusWaiting,
		IsPrivate:          req.IsPrivate,
		NumProblems:        numProblems,
		MinRating:          minRating,
		MaxRating:          maxRating,
		ScheduledStartTime: scheduledStart,
		DurationMinutes:    duration,
	}
	for _, handle := range handles {
		duel.Participants = append(duel.Participants, models.DuelParticipant{Handle: handle})
	}

	if err := s.Store.Create(c.Context(), duel); err != nil {
		return respondError(c, err)
	}
	created, err := s.Store.Get(c.Context(), duel.DuelID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"duel":    created,
	})
}

func (s *DuelService) GetDuel(c *fiber.Ctx) error {
	duel, err := s.Store.Get(c.Context(), c.Params("duelId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"duel":    duel,
	})
}

func (s *DuelService) ListDuels(c *fiber.Ctx) error {
	filter := DuelListFilter{
		Limit:          c.QueryInt("limit", 20),
		Skip:           c.QueryInt("skip", 0),
		IncludePrivate: c.Query("includePrivate") == "true",
	}
	if status := c.Query("status"); status != "" && status != "all" {
		filter.Status = status
	}

	duels, total, err := s.Store.List(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(duels),
		"total":   total,
		"duels":   duels,
	})
}

func (s *DuelService) GetDuelsByStatus(c *fiber.Ctx) error {
	status := c.Params("status")
	if !validStatus(status) {
		return respondError(c, fmt.Errorf("%w: invalid status %q", ErrValidation, status))
	}
	duels, total, err := s.Store.List(c.Context(), DuelListFilter{
		Status:         status,
		Limit:          c.QueryInt("limit", 20),
		Skip:           c.QueryInt("skip", 0),
		IncludePrivate: true,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(duels),
		"total":   total,
		"duels":   duels,
	})
}

func (s *DuelService) GetRecentDuels(c *fiber.Ctx) error {
	duels, _, err := s.Store.List(c.Context(), DuelListFilter{
		Limit: c.QueryInt("limit", 10),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(duels),
		"duels":   duels,
	})
}

func (s *DuelService) GetDuelsByHandle(c *fiber.Ctx) error {
	filter := DuelListFilter{
		Handle:         c.Params("handle"),
		Limit:          c.QueryInt("limit", 20),
		Skip:           c.QueryInt("skip", 0),
		IncludePrivate: true,
	}
	if status := c.Query("status"); status != "" && status != "all" {
		filter.Status = status
	}
	duels, total, err := s.Store.List(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(duels),
		"total":   total,
		"duels":   duels,
	})
}

func (s *DuelService) GetDuelsByCreator(c *fiber.Ctx) error {
	duels, total, err := s.Store.List(c.Context(), DuelListFilter{
		Creator:        c.Params("creatorHandle"),
		Limit:          c.QueryInt("limit", 20),
		Skip:           c.QueryInt("skip", 0),
		IncludePrivate: true,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(duels),
		"total":   total,
		"duels":   duels,
	})
}

func (s *DuelService) AddHandle(c *fiber.Ctx) error {
	var req struct {
		Handle string `json:"handle"`
	}
	if err := c.BodyParser(&req); err != nil || req.Handle == "" {
		return respondError(c, fmt.Errorf("%w: handle is required", ErrValidation))
	}

	duelID := c.Params("duelId")
	duel, err := s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	duel, err = s.Lifecycle.Reconcile(c.Context(), duel, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	if duel.Status != models.DuelStatusWaiting && duel.Status != models.DuelStatusActive {
		return respondError(c, fmt.Errorf("%w: cannot join a %s duel", ErrInvalidTransition, duel.Status))
	}

	if err := s.Store.AddParticipant(c.Context(), duelID, req.Handle); err != nil {
		return respondError(c, err)
	}
	duel, err = s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Handle %q added to duel", req.Handle),
		"duel":    duel,
	})
}

func (s *DuelService) StartDuel(c *fiber.Ctx) error {
	var req struct {
		CreatorHandle string `json:"creatorHandle"`
	}
	_ = c.BodyParser(&req)
	if req.CreatorHandle == "" {
		if handle, ok := c.Locals("handle").(string); ok {
			req.CreatorHandle = handle
		}
	}

	duelID := c.Params("duelId")
	duel, err := s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	// A stale "waiting" row whose schedule already passed must not be
	// restartable.
	if _, err := s.Lifecycle.Reconcile(c.Context(), duel, time.Now()); err != nil {
		return respondError(c, err)
	}

	duel, err = s.Lifecycle.Start(c.Context(), duelID, req.CreatorHandle)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Duel is starting in 10 seconds...",
		"countdown": int(models.StartingWindow / time.Second),
		"duel":      duel,
	})
}

func (s *DuelService) CancelDuel(c *fiber.Ctx) error {
	duel, err := s.Lifecycle.Cancel(c.Context(), c.Params("duelId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Duel cancelled",
		"duel":    duel,
	})
}

func (s *DuelService) GetDuelStatus(c *fiber.Ctx) error {
	now := time.Now()
	duel, err := s.Store.Get(c.Context(), c.Params("duelId"))
	if err != nil {
		return respondError(c, err)
	}
	duel, err = s.Lifecycle.Reconcile(c.Context(), duel, now)
	if err != nil {
		return respondError(c, err)
	}

	response := fiber.Map{
		"success": true,
		"status":  duel.Status,
		"duel":    duel,
		"timing": fiber.Map{
			"timeUntilStart":      duel.TimeUntilStartAt(now),
			"remainingTime":       duel.RemainingTimeAt(now),
			"elapsedTime":         duel.ElapsedTimeAt(now),
			"duelDurationMinutes": duel.DurationMinutes,
			"scheduledStartTime":  duel.ScheduledStartTime,
		},
	}
	if duel.Status == models.DuelStatusStarting {
		response["countdown"] = duel.CountdownAt(now)
	}
	return c.JSON(response)
}

// GetDuelCountdown serves older clients that poll only the starting-window
// countdown.
func (s *DuelService) GetDuelCountdown(c *fiber.Ctx) error {
	now := time.Now()
	duel, err := s.Store.Get(c.Context(), c.Params("duelId"))
	if err != nil {
		return respondError(c, err)
	}
	duel, err = s.Lifecycle.Reconcile(c.Context(), duel, now)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"status":    duel.Status,
		"countdown": duel.CountdownAt(now),
	})
}

func (s *DuelService) GenerateProblems(c *fiber.Ctx) error {
	duelID := c.Params("duelId")
	duel, err := s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	if duel.ProblemsGenerated {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Problems already generated for this duel",
			"duel":    duel,
		})
	}

	problems, err := s.Tasks.SelectProblems(c.Context(), duel.MinRating, duel.MaxRating, duel.Handles, duel.NumProblems)
	if err != nil {
		return respondError(c, err)
	}
	if len(problems) == 0 {
		return respondError(c, ErrNoCandidates)
	}

	assigned := make([]models.DuelProblem, 0, len(problems))
	for _, p := range problems {
		assigned = append(assigned, models.DuelProblem{
			ContestID: p.ContestID,
			Index:     p.Index,
			Name:      p.Name,
			Rating:    p.Rating,
		})
	}
	if err := s.Store.SetProblems(c.Context(), duelID, assigned); err != nil {
		// A concurrent generator won the race; its set stands.
		if err != ErrAlreadyGenerated {
			return respondError(c, err)
		}
	}

	duel, err = s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("%d problems generated for duel", len(duel.Problems)),
		"duel":    duel,
	})
}

func (s *DuelService) UpdateScore(c *fiber.Ctx) error {
	var req struct {
		Handle string `json:"handle"`
		Score  *int64 `json:"score"`
	}
	if err := c.BodyParser(&req); err != nil || req.Handle == "" || req.Score == nil {
		return respondError(c, fmt.Errorf("%w: handle and score are required", ErrValidation))
	}
	if *req.Score < 0 {
		return respondError(c, fmt.Errorf("%w: score must not be negative", ErrValidation))
	}

	duelID := c.Params("duelId")
	if err := s.Store.SetScore(c.Context(), duelID, req.Handle, *req.Score); err != nil {
		return respondError(c, err)
	}
	duel, err := s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Score updated for handle %q", req.Handle),
		"duel":    duel,
	})
}

func (s *DuelService) CheckSubmissions(c *fiber.Ctx) error {
	result, err := s.Scorer.CheckSubmissions(c.Context(), c.Params("duelId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"scores":      result.Scores,
		"completed":   result.Completed,
		"winner":      result.Winner,
		"new_credits": result.NewCredits,
	})
}

func (s *DuelService) DeleteDuel(c *fiber.Ctx) error {
	duelID := c.Params("duelId")
	duel, err := s.Store.Get(c.Context(), duelID)
	if err != nil {
		return respondError(c, err)
	}
	if creator := c.Query("creatorHandle"); creator != "" && creator != duel.CreatorHandle {
		return respondError(c, fmt.Errorf("%w: only the creator can delete this duel", ErrForbidden))
	}
	if err := s.Store.Delete(c.Context(), duelID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Duel %s deleted", duelID),
	})
}

func validStatus(status string) bool {
	switch status {
	case models.DuelStatusWaiting, models.DuelStatusStarting, models.DuelStatusActive,
		models.DuelStatusCompleted, models.DuelStatusCancelled:
		return true
	}
	return false
}
