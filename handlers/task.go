package handlers

import (
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(app *fiber.App, taskService *services.TaskService) {
	tasks := app.Group("/api/tasks")

	tasks.Post("/single-problem", taskService.GetSingleProblem)
	tasks.Post("/multiple-problems", taskService.GetMultipleProblems)
	tasks.Get("/user-solves/:handle/:contestId/:index", taskService.GetUserSolves)
	tasks.Get("/verify-handle/:handle", taskService.VerifyHandleEndpoint)
}
