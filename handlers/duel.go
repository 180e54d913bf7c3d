package handlers

import (
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDuelRoutes(app *fiber.App, duelService *services.DuelService) {
	duels := app.Group("/api/duels")

	duels.Post("/", duelService.CreateDuel)
	duels.Get("/", duelService.ListDuels)
	duels.Get("/recent", duelService.GetRecentDuels)
	duels.Get("/status/:status", duelService.GetDuelsByStatus)
	duels.Get("/id/:duelId", duelService.GetDuel)
	duels.Get("/user/:handle", duelService.GetDuelsByHandle)
	duels.Get("/creator/:creatorHandle", duelService.GetDuelsByCreator)

	// Lifecycle
	duels.Put("/:duelId/start", duelService.StartDuel)
	duels.Put("/:duelId/cancel", duelService.CancelDuel)
	duels.Get("/:duelId/status", duelService.GetDuelStatus)
	duels.Get("/:duelId/countdown", duelService.GetDuelCountdown) // legacy clients

	// Participants, problems, scoring
	duels.Put("/:duelId/add-handle", duelService.AddHandle)
	duels.Post("/:duelId/generate-problems", duelService.GenerateProblems)
	duels.Put("/:duelId/update-score", duelService.UpdateScore)
	duels.Post("/:duelId/check-submissions", duelService.CheckSubmissions)

	duels.Delete("/:duelId", duelService.DeleteDuel)
}
