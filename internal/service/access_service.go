// Package service implements the operations of the access-queue lifecycle
// engine on top of the repositories and the queue engine.
package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"greenroom/internal/models"
	"greenroom/internal/queue"
	"greenroom/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AccessService handles submission and status operations for access requests.
type AccessService struct {
	requests repository.AccessRequestRepository
	audit    repository.AuditRepository
	engine   *queue.Engine
	now      func() time.Time
}

// NewAccessService creates an AccessService.
func NewAccessService(requests repository.AccessRequestRepository, audit repository.AuditRepository, engine *queue.Engine) *AccessService {
	return &AccessService{
		requests: requests,
		audit:    audit,
		engine:   engine,
		now:      time.Now,
	}
}

// SubmitResult is the outcome of a submission attempt.
type SubmitResult struct {
	RequestID     uint                `json:"request_id"`
	Email         string              `json:"email"`
	Status        models.AccessStatus `json:"status"`
	Resubmitted   bool                `json:"resubmitted,omitempty"`
	AlreadyActive bool                `json:"already_active,omitempty"`
	QueuePosition int                 `json:"queue_position,omitempty"`
	EstimatedWait string              `json:"estimated_wait,omitempty"`
	DaysRemaining int                 `json:"days_remaining,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	Message       string              `json:"message"`
}

// Submit creates a new access request, or handles the existing row per its
// state: active returns the remaining window, pending conflicts with the
// current queue position, terminal states reset in place.
func (s *AccessService) Submit(ctx context.Context, email, fullName string) (*SubmitResult, error) {
	email = strings.TrimSpace(email)
	fullName = strings.TrimSpace(fullName)
	if !emailPattern.MatchString(email) || len(email) > 320 {
		return nil, models.NewValidationError("A valid email address is required")
	}
	if fullName == "" || len(fullName) > 120 {
		return nil, models.NewValidationError("Full name is required (max 120 characters)")
	}

	existing, err := s.requests.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		switch {
		case existing.Status == models.AccessStatusActive:
			result := &SubmitResult{
				RequestID:     existing.ID,
				Email:         email,
				Status:        models.AccessStatusActive,
				AlreadyActive: true,
				ExpiresAt:     existing.ExpiresAt,
				Message:       "You already have active access",
			}
			if existing.ExpiresAt != nil {
				result.DaysRemaining = models.DaysRemaining(*existing.ExpiresAt, s.now())
			}
			return result, nil

		case existing.Status == models.AccessStatusPending:
			position, err := s.engine.Position(ctx, existing)
			if err != nil {
				return nil, err
			}
			return nil, models.NewConflictError("Request already pending", map[string]interface{}{
				"queue_position": position,
			})

		case existing.Status.IsTerminal():
			now := s.now()
			if err := s.requests.ResetForResubmission(ctx, existing.ID, fullName, now); err != nil {
				return nil, err
			}
			if err := s.audit.Log(ctx, models.AuditRequestResubmitted, &existing.ID, map[string]string{
				"email":     email,
				"full_name": fullName,
			}, models.PerformedBySystem); err != nil {
				return nil, err
			}

			refreshed := *existing
			refreshed.CreatedAt = now
			refreshed.Status = models.AccessStatusPending
			position, err := s.engine.Position(ctx, &refreshed)
			if err != nil {
				return nil, err
			}
			return &SubmitResult{
				RequestID:     existing.ID,
				Email:         email,
				Status:        models.AccessStatusPending,
				Resubmitted:   true,
				QueuePosition: position,
				EstimatedWait: queue.EstimateWait(position),
				Message:       "Access request submitted successfully",
			}, nil
		}
	}

	req := &models.AccessRequest{
		Email:     email,
		FullName:  fullName,
		Status:    models.AccessStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	if err := s.audit.Log(ctx, models.AuditRequestSubmitted, &req.ID, map[string]string{
		"email":     email,
		"full_name": fullName,
	}, models.PerformedBySystem); err != nil {
		return nil, err
	}

	position, err := s.engine.Position(ctx, req)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		RequestID:     req.ID,
		Email:         email,
		Status:        models.AccessStatusPending,
		QueuePosition: position,
		EstimatedWait: queue.EstimateWait(position),
		Message:       "Access request submitted successfully",
	}, nil
}

// StatusResult describes where a request stands.
type StatusResult struct {
	Status        models.AccessStatus `json:"status"`
	QueuePosition int                 `json:"queue_position,omitempty"`
	EstimatedWait string              `json:"estimated_wait,omitempty"`
	CreatedAt     *time.Time          `json:"created_at,omitempty"`
	ActivatedAt   *time.Time          `json:"activated_at,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	DaysRemaining int                 `json:"days_remaining"`
	SlotNumber    *int                `json:"slot_number,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// Status is the read-only status query for one email.
func (s *AccessService) Status(ctx context.Context, email string) (*StatusResult, error) {
	req, err := s.requests.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, models.NewNotFoundError("Access request", email)
	}

	switch req.Status {
	case models.AccessStatusPending:
		position, err := s.engine.Position(ctx, req)
		if err != nil {
			return nil, err
		}
		created := req.CreatedAt
		return &StatusResult{
			Status:        models.AccessStatusPending,
			QueuePosition: position,
			EstimatedWait: queue.EstimateWait(position),
			CreatedAt:     &created,
		}, nil

	case models.AccessStatusActive:
		result := &StatusResult{
			Status:      models.AccessStatusActive,
			ActivatedAt: req.ActivatedAt,
			ExpiresAt:   req.ExpiresAt,
			SlotNumber:  req.SlotNumber,
		}
		if req.ExpiresAt != nil {
			result.DaysRemaining = models.DaysRemaining(*req.ExpiresAt, s.now())
		}
		return result, nil
	}

	return &StatusResult{
		Status:  req.Status,
		Message: req.Status.Message(),
	}, nil
}

// QueueOverview is the admin dashboard snapshot.
type QueueOverview struct {
	Summary struct {
		TotalSlots       int `json:"total_slots"`
		ActiveSlots      int `json:"active_slots"`
		AvailableSlots   int `json:"available_slots"`
		PendingRequests  int `json:"pending_requests"`
		ExpiringToday    int `json:"expiring_today"`
		ExpiringTomorrow int `json:"expiring_tomorrow"`
	} `json:"summary"`
	Active          []models.AdminView `json:"active"`
	Pending         []models.AdminView `json:"pending"`
	RecentlyExpired []models.AdminView `json:"recently_expired"`
}

// Overview builds the admin dashboard snapshot: counts, active users by
// soonest expiry, pending users in queue order, and the last week's churn.
func (s *AccessService) Overview(ctx context.Context) (*QueueOverview, error) {
	now := s.now()
	overview := &QueueOverview{}

	activeCount, err := s.requests.CountByStatus(ctx, models.AccessStatusActive)
	if err != nil {
		return nil, err
	}
	pendingCount, err := s.requests.CountByStatus(ctx, models.AccessStatusPending)
	if err != nil {
		return nil, err
	}
	expiringToday, err := s.requests.CountActiveExpiringBetween(ctx, time.Time{}, now.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	expiringTomorrow, err := s.requests.CountActiveExpiringBetween(ctx, now.Add(24*time.Hour), now.Add(48*time.Hour))
	if err != nil {
		return nil, err
	}

	maxSlots := s.engine.MaxSlots(ctx)
	overview.Summary.TotalSlots = maxSlots
	overview.Summary.ActiveSlots = activeCount
	overview.Summary.AvailableSlots = maxSlots - activeCount
	overview.Summary.PendingRequests = pendingCount
	overview.Summary.ExpiringToday = expiringToday
	overview.Summary.ExpiringTomorrow = expiringTomorrow

	active, err := s.requests.ListByStatus(ctx, models.AccessStatusActive, "expires_at ASC")
	if err != nil {
		return nil, err
	}
	overview.Active = make([]models.AdminView, 0, len(active))
	for i := range active {
		overview.Active = append(overview.Active, active[i].ToAdminView(now))
	}

	pending, err := s.requests.ListByStatus(ctx, models.AccessStatusPending, "created_at ASC")
	if err != nil {
		return nil, err
	}
	overview.Pending = make([]models.AdminView, 0, len(pending))
	for i := range pending {
		view := pending[i].ToAdminView(now)
		view.QueuePosition = i + 1
		overview.Pending = append(overview.Pending, view)
	}

	recent, err := s.requests.RecentlyExpired(ctx, now.Add(-7*24*time.Hour), 10)
	if err != nil {
		return nil, err
	}
	overview.RecentlyExpired = make([]models.AdminView, 0, len(recent))
	for i := range recent {
		overview.RecentlyExpired = append(overview.RecentlyExpired, recent[i].ToAdminView(now))
	}

	return overview, nil
}

// WithClock overrides the time source. Used by tests.
func (s *AccessService) WithClock(now func() time.Time) *AccessService {
	s.now = now
	return s
}
