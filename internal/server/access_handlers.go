package server

import (
	"net/url"
	"strings"

	"greenroom/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SubmitAccessRequest handles POST /api/access/request.
// New requests and resubmissions return 201; an already-active user gets a
// 200 with the remaining window; a request already in the queue conflicts
// with 409 carrying the current queue position.
func (s *Server) SubmitAccessRequest(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	result, err := s.accessService.Submit(c.UserContext(), body.Email, body.FullName)
	if err != nil {
		return respondError(c, err)
	}

	s.refreshQueueGauges(c.UserContext())

	if result.AlreadyActive {
		return c.JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetAccessStatus handles GET /api/access/status/:email. The param arrives
// percent-encoded (fiber does not decode route params), so "%40" must read
// as "@" before lookup.
func (s *Server) GetAccessStatus(c *fiber.Ctx) error {
	raw := c.Params("email")
	email, err := url.PathUnescape(raw)
	if err != nil {
		email = raw
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email is required"))
	}

	result, err := s.accessService.Status(c.UserContext(), email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
