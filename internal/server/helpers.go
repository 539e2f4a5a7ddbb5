package server

import (
	"errors"

	"greenroom/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts the "id" route parameter as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// respondError maps an application error to its HTTP status and writes the
// standardized body. Conflict errors additionally carry their data payload.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == models.CodeConflict {
		body := fiber.Map{
			"error": appErr.Message,
			"code":  appErr.Code,
		}
		if m, ok := appErr.Data.(map[string]interface{}); ok {
			for k, v := range m {
				body[k] = v
			}
		}
		return c.Status(fiber.StatusConflict).JSON(body)
	}
	return models.RespondWithError(c, models.StatusForError(err), err)
}
