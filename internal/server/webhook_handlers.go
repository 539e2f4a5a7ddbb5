package server

import (
	"greenroom/internal/models"
	"greenroom/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AutomationReport handles POST /api/webhook/automation: the orchestration
// job posts its run report here and every result is reconciled into request
// state. Reconciliation of one result never blocks the rest, so the endpoint
// always acknowledges a well-formed report.
func (s *Server) AutomationReport(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var body struct {
		RunID   string                     `json:"run_id"`
		Results []service.AutomationResult `json:"results"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if len(body.Results) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Results are required"))
	}

	for _, result := range body.Results {
		s.reconciler.ApplyResult(ctx, result)
	}

	s.refreshQueueGauges(ctx)

	return c.JSON(fiber.Map{
		"message":   "Report processed",
		"run_id":    body.RunID,
		"processed": len(body.Results),
	})
}
