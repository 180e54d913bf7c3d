package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Common service errors
var (
	ErrValidation   = errors.New("invalid input")
	ErrDuelNotFound = errors.New("duel not found")
	ErrForbidden    = errors.New("forbidden")
)

// Lifecycle errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Problem generation and scoring errors
var (
	ErrAlreadyGenerated = errors.New("problems already generated")
	ErrNotParticipant   = errors.New("handle is not a participant")
	ErrNoCandidates     = errors.New("no problems match the criteria")
)

// External judge errors
var (
	ErrUpstream = errors.New("codeforces api unavailable")
)

// respondError maps service errors onto the JSON envelope the API has always
// used. Unknown errors become 500s without leaking internals.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrDuelNotFound), errors.Is(err, ErrNoCandidates):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotParticipant):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, ErrUpstream):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
