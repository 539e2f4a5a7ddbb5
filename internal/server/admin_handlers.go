package server

import (
	"strconv"
	"strings"
	"time"

	"greenroom/internal/cache"
	"greenroom/internal/models"
	"greenroom/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const queueOverviewCacheKey = "admin:queue-overview"

// AdminLogin handles POST /api/admin/login. There is a single admin identity
// whose bcrypt hash comes from configuration.
func (s *Server) AdminLogin(c *fiber.Ctx) error {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if s.config.AdminPasswordHash == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Admin login is not configured"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(body.Password)); err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid credentials"))
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "admin",
		"iat": now.Unix(),
		"exp": now.Add(12 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": now.Add(12 * time.Hour),
	})
}

// GetQueue handles GET /api/admin/queue: the dashboard snapshot, cached
// briefly to keep a busy dashboard off the database.
func (s *Server) GetQueue(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var overview service.QueueOverview
	err := cache.Aside(ctx, queueOverviewCacheKey, &overview, 10*time.Second, func() error {
		fresh, err := s.accessService.Overview(ctx)
		if err != nil {
			return err
		}
		overview = *fresh
		return nil
	})
	if err != nil {
		return respondError(c, err)
	}

	s.refreshQueueGauges(ctx)
	return c.JSON(overview)
}

// ManualIntervention handles POST /api/admin/manual/:id. The admin confirms
// they performed the dashboard operation by hand; state moves the same way
// the automated success path would move it.
func (s *Server) ManualIntervention(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}

	action := service.ManualAction(strings.TrimSpace(body.Action))
	if err := s.reconciler.MarkManuallyProcessed(ctx, req, action); err != nil {
		return respondError(c, err)
	}

	cache.Invalidate(ctx, queueOverviewCacheKey)
	s.refreshQueueGauges(ctx)

	updated, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated.ToAdminView(time.Now()))
}

// RemoveUser handles POST /api/admin/remove/:id: early removal of an active
// user, freeing the slot on the next automation run.
func (s *Server) RemoveUser(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "admin"
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.reconciler.MarkRemoved(ctx, req, reason); err != nil {
		return respondError(c, err)
	}

	cache.Invalidate(ctx, queueOverviewCacheKey)
	s.refreshQueueGauges(ctx)

	return c.JSON(fiber.Map{
		"message": "User removed",
		"id":      id,
	})
}

// GetAuditLog handles GET /api/admin/audit with limit/offset pagination and
// an optional action filter.
func (s *Server) GetAuditLog(c *fiber.Ctx) error {
	ctx := c.UserContext()

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	action := models.AuditAction(strings.TrimSpace(c.Query("action")))

	entries, err := s.auditRepo.List(ctx, limit, offset, action)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

// settableKeys are the settings an admin may change, with their validators.
var settableKeys = map[string]func(string) bool{
	models.SettingMaxSlots:           isPositiveInt,
	models.SettingAccessDurationDays: isPositiveInt,
	models.SettingExpiryWarningDays:  isPositiveInt,
	models.SettingAutomationEnabled:  isBool,
}

func isPositiveInt(v string) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n > 0
}

func isBool(v string) bool {
	_, err := strconv.ParseBool(v)
	return err == nil
}

// GetSettings handles GET /api/admin/settings.
func (s *Server) GetSettings(c *fiber.Ctx) error {
	settings, err := s.settingsRepo.All(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"settings": settings})
}

// UpdateSettings handles PUT /api/admin/settings. Unknown keys and invalid
// values reject the whole request; nothing is partially applied before
// validation completes.
func (s *Server) UpdateSettings(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var body map[string]string
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if len(body) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("At least one setting is required"))
	}

	for key, value := range body {
		validate, ok := settableKeys[key]
		if !ok {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Unknown setting: "+key))
		}
		if !validate(value) {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid value for setting: "+key))
		}
	}

	for key, value := range body {
		if err := s.settingsRepo.Set(ctx, key, value); err != nil {
			return respondError(c, err)
		}
	}

	cache.Invalidate(ctx, queueOverviewCacheKey)

	settings, err := s.settingsRepo.All(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"settings": settings})
}
