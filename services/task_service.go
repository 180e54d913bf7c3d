package services

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"duel-arena/models"

	"github.com/gofiber/fiber/v2"
)

// TaskService selects duel problems and answers the task endpoints:
// problem picks, per-problem solve lookups and handle verification.
type TaskService struct {
	Judge   JudgeClient
	Catalog CatalogStore
}

func NewTaskService(judge JudgeClient, catalog CatalogStore) *TaskService {
	return &TaskService{Judge: judge, Catalog: catalog}
}

// solvedProblemKeys returns the union of problems any of the handles has an
// accepted submission for. Histories are fetched concurrently; a handle
// whose history cannot be fetched contributes nothing rather than failing
// the selection.
func (s *TaskService) solvedProblemKeys(ctx context.Context, handles []string) map[string]bool {
	type result struct {
		handle      string
		submissions []Submission
		err         error
	}

	results := make([]result, len(handles))
	var wg sync.WaitGroup
	for i, handle := range handles {
		wg.Add(1)
		go func(i int, handle string) {
			defer wg.Done()
			submissions, err := s.Judge.UserSubmissions(ctx, handle)
			results[i] = result{handle: handle, submissions: submissions, err: err}
		}(i, handle)
	}
	wg.Wait()

	solved := make(map[string]bool)
	for _, r := range results {
		if r.err != nil {
			log.Printf("[TASKS] submissions for %s unavailable, treating as unsolved: %v", r.handle, r.err)
			continue
		}
		for _, sub := range r.submissions {
			if sub.Verdict == VerdictAccepted {
				solved[sub.Key()] = true
			}
		}
	}
	return solved
}

// SelectProblems picks up to count problems rated within [minRating,
// maxRating] that none of the handles has solved, uniformly at random. It
// may return fewer than count; an empty result is not an error here,
// callers decide.
func (s *TaskService) SelectProblems(ctx context.Context, minRating, maxRating int, handles []string, count int) ([]models.CatalogProblem, error) {
	solved := s.solvedProblemKeys(ctx, handles)

	candidates, err := s.Catalog.ProblemsInRange(ctx, minRating, maxRating)
	if err != nil {
		return nil, err
	}

	unsolved := candidates[:0:0]
	for _, p := range candidates {
		if !solved[p.Key()] {
			unsolved = append(unsolved, p)
		}
	}

	rand.Shuffle(len(unsolved), func(i, j int) {
		unsolved[i], unsolved[j] = unsolved[j], unsolved[i]
	})
	if len(unsolved) > count {
		unsolved = unsolved[:count]
	}
	return unsolved, nil
}

// UserSolves returns the handle's submissions for one problem, most recent
// first.
func (s *TaskService) UserSolves(ctx context.Context, handle string, contestID int, index string, limit int) ([]Submission, error) {
	submissions, err := s.Judge.UserSubmissions(ctx, handle)
	if err != nil {
		return nil, err
	}

	key := models.ProblemKey(contestID, strings.ToUpper(index))
	var matched []Submission
	for _, sub := range submissions {
		if sub.Key() == key {
			matched = append(matched, sub)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// VerifyHandle reports whether the handle exists on the judge.
func (s *TaskService) VerifyHandle(ctx context.Context, handle string) bool {
	profile, err := s.Judge.UserInfo(ctx, handle)
	if err != nil {
		log.Printf("[TASKS] handle verification failed for %q: %v", handle, err)
		return false
	}
	return strings.EqualFold(profile.Handle, handle)
}

// --- HTTP handlers ---

type problemRequest struct {
	RatingMin int      `json:"ratingMin"`
	RatingMax int      `json:"ratingMax"`
	Handles   []string `json:"handles"`
	Count     int      `json:"count"`
}

func (r problemRequest) validate() error {
	if r.RatingMin <= 0 || r.RatingMax <= 0 || len(r.Handles) == 0 {
		return ErrValidation
	}
	return nil
}

func (s *TaskService) GetSingleProblem(c *fiber.Ctx) error {
	var req problemRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, ErrValidation)
	}
	if err := req.validate(); err != nil {
		return respondError(c, err)
	}

	problems, err := s.SelectProblems(c.Context(), req.RatingMin, req.RatingMax, req.Handles, 1)
	if err != nil {
		return respondError(c, err)
	}
	if len(problems) == 0 {
		return respondError(c, ErrNoCandidates)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"problem": problems[0],
	})
}

func (s *TaskService) GetMultipleProblems(c *fiber.Ctx) error {
	var req problemRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, ErrValidation)
	}
	if err := req.validate(); err != nil {
		return respondError(c, err)
	}
	if req.Count <= 0 {
		req.Count = 5
	}

	problems, err := s.SelectProblems(c.Context(), req.RatingMin, req.RatingMax, req.Handles, req.Count)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"count":    len(problems),
		"problems": problems,
	})
}

func (s *TaskService) GetUserSolves(c *fiber.Ctx) error {
	handle := c.Params("handle")
	contestID, err := c.ParamsInt("contestId")
	index := c.Params("index")
	if handle == "" || err != nil || index == "" {
		return respondError(c, ErrValidation)
	}
	limit := c.QueryInt("limit", 10)

	submissions, err := s.UserSolves(c.Context(), handle, contestID, index, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"count":       len(submissions),
		"submissions": submissions,
	})
}

func (s *TaskService) VerifyHandleEndpoint(c *fiber.Ctx) error {
	handle := c.Params("handle")
	if handle == "" {
		return respondError(c, ErrValidation)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"valid":   s.VerifyHandle(c.Context(), handle),
		"handle":  handle,
	})
}
