package handlers

import (
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProblemRoutes(app *fiber.App, problemService *services.ProblemService) {
	cf := app.Group("/api/cf")

	cf.Get("/problems", problemService.ListProblems)
	cf.Post("/update", problemService.UpdateProblemset)
}
