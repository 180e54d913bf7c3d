package services

import (
	"github.com/gofiber/fiber/v2"
)

// ProblemService exposes the local problemset mirror and its manual refresh.
type ProblemService struct {
	Catalog CatalogStore
	Judge   JudgeClient
}

func NewProblemService(catalog CatalogStore, judge JudgeClient) *ProblemService {
	return &ProblemService{Catalog: catalog, Judge: judge}
}

func (s *ProblemService) ListProblems(c *fiber.Ctx) error {
	problems, total, err := s.Catalog.FilterProblems(c.Context(), CatalogFilter{
		MinRating: c.QueryInt("minRating", 0),
		MaxRating: c.QueryInt("maxRating", 0),
		Tag:       c.Query("tag"),
		Limit:     c.QueryInt("limit", 50),
		Skip:      c.QueryInt("skip", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"count":    len(problems),
		"total":    total,
		"problems": problems,
	})
}

// UpdateProblemset pulls the full problemset from the judge and refreshes
// the mirror. The sync worker does the same on a schedule; this endpoint is
// the manual trigger.
func (s *ProblemService) UpdateProblemset(c *fiber.Ctx) error {
	problems, err := s.Judge.ProblemList(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	written, err := s.Catalog.UpsertProblems(c.Context(), problems)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"totalProblems": len(problems),
		"written":       written,
	})
}
