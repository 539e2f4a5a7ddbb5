package service

import (
	"context"
	"log/slog"
	"time"

	"greenroom/internal/middleware"
	"greenroom/internal/models"
	"greenroom/internal/notifications"
	"greenroom/internal/observability"
	"greenroom/internal/queue"
	"greenroom/internal/repository"
)

// maxAutomationAttempts is the 3-strike threshold: at or beyond it a request
// is frozen for manual triage.
const maxAutomationAttempts = 3

// Reconciler translates external actor outcomes into store mutations plus
// audit entries. A transition without its audit row is an error: audit
// failures surface to the caller instead of being swallowed. Batch callers
// go through ApplyResult, which logs per-result errors so one user never
// blocks the rest.
type Reconciler struct {
	requests   repository.AccessRequestRepository
	audit      repository.AuditRepository
	engine     *queue.Engine
	dispatcher *notifications.Dispatcher
	now        func() time.Time
}

// NewReconciler creates a Reconciler. dispatcher may be nil in contexts that
// do not send notifications.
func NewReconciler(requests repository.AccessRequestRepository, audit repository.AuditRepository, engine *queue.Engine, dispatcher *notifications.Dispatcher) *Reconciler {
	return &Reconciler{
		requests:   requests,
		audit:      audit,
		engine:     engine,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

func (r *Reconciler) emit(event notifications.Event) {
	if r.dispatcher != nil {
		r.dispatcher.Emit(event)
	}
}

// Activate applies a successful "add" outcome: the request becomes active
// with a fresh access window and the given slot number.
func (r *Reconciler) Activate(ctx context.Context, req *models.AccessRequest, slotNumber int) error {
	now := r.now()
	expiresAt := now.Add(time.Duration(r.engine.AccessDurationDays(ctx)) * 24 * time.Hour)

	if err := r.requests.Activate(ctx, req.ID, slotNumber, now, expiresAt); err != nil {
		return err
	}

	if err := r.audit.Log(ctx, models.AuditUserActivated, &req.ID, map[string]interface{}{
		"slot_number": slotNumber,
		"expires_at":  expiresAt,
	}, models.PerformedBySystem); err != nil {
		return err
	}
	observability.StateTransitions.WithLabelValues(string(models.AuditUserActivated)).Inc()

	r.emit(notifications.Event{
		Type:      notifications.EventAccessGranted,
		RequestID: req.ID,
		Email:     req.Email,
		FullName:  req.FullName,
	})
	return nil
}

// MarkExpired applies a successful "remove" outcome on the time-expiry path.
func (r *Reconciler) MarkExpired(ctx context.Context, req *models.AccessRequest) error {
	if err := r.requests.MarkExpired(ctx, req.ID, r.now()); err != nil {
		return err
	}

	if err := r.audit.Log(ctx, models.AuditUserExpired, &req.ID, map[string]string{
		"reason": "time_limit",
	}, models.PerformedBySystem); err != nil {
		return err
	}
	observability.StateTransitions.WithLabelValues(string(models.AuditUserExpired)).Inc()

	_ = r.requests.MarkExpiryNotificationSent(ctx, req.ID)
	r.emit(notifications.Event{
		Type:      notifications.EventAccessExpired,
		RequestID: req.ID,
		Email:     req.Email,
		FullName:  req.FullName,
	})
	return nil
}

// MarkRemoved applies an admin-requested removal.
func (r *Reconciler) MarkRemoved(ctx context.Context, req *models.AccessRequest, reason string) error {
	if err := r.requests.MarkRemoved(ctx, req.ID, r.now()); err != nil {
		return err
	}

	if err := r.audit.Log(ctx, models.AuditUserRemoved, &req.ID, map[string]string{
		"reason": reason,
	}, models.PerformedBySystem); err != nil {
		return err
	}
	observability.StateTransitions.WithLabelValues(string(models.AuditUserRemoved)).Inc()
	return nil
}

// MarkAutomationFailed records one failed dashboard operation. It returns
// true when the request has exhausted its attempts and needs manual
// intervention; pending requests are then frozen in the failed state.
func (r *Reconciler) MarkAutomationFailed(ctx context.Context, req *models.AccessRequest, errText string) (bool, error) {
	attempts, err := r.requests.IncrementAutomationFailure(ctx, req.ID, errText)
	if err != nil {
		return false, err
	}
	observability.AutomationFailures.WithLabelValues("dashboard").Inc()

	if attempts < maxAutomationAttempts {
		if err := r.audit.Log(ctx, models.AuditAutomationFailed, &req.ID, map[string]interface{}{
			"attempts": attempts,
			"error":    errText,
		}, models.PerformedBySystem); err != nil {
			return false, err
		}
		return false, nil
	}

	// The failed state only exists on the add path; an active row keeps its
	// slot until removal succeeds or an admin steps in.
	if req.Status == models.AccessStatusPending {
		if err := r.requests.MarkFailed(ctx, req.ID); err != nil {
			middleware.Logger.Error("failed to freeze request after max attempts",
				slog.Uint64("request_id", uint64(req.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := r.audit.Log(ctx, models.AuditAutomationMaxFailures, &req.ID, map[string]interface{}{
		"attempts":   attempts,
		"last_error": errText,
	}, models.PerformedBySystem); err != nil {
		return true, err
	}
	observability.StateTransitions.WithLabelValues(string(models.AuditAutomationMaxFailures)).Inc()

	r.emit(notifications.Event{
		Type:      notifications.EventEscalation,
		RequestID: req.ID,
		Email:     req.Email,
		FullName:  req.FullName,
		Message:   "Automation failed repeatedly; manual intervention required",
		Error:     errText,
	})
	return true, nil
}

// ManualAction is an admin override bypassing automation.
type ManualAction string

const (
	ManualActionAdded   ManualAction = "added"
	ManualActionRemoved ManualAction = "removed"
)

// MarkManuallyProcessed applies an admin override: the same state mutation as
// the automated success path, audited as manual_intervention by the admin.
// For "added" the slot number is activeCount+1, a display ordinal rather
// than a reservation.
func (r *Reconciler) MarkManuallyProcessed(ctx context.Context, req *models.AccessRequest, action ManualAction) error {
	now := r.now()

	switch action {
	case ManualActionAdded:
		activeCount, err := r.requests.CountByStatus(ctx, models.AccessStatusActive)
		if err != nil {
			return err
		}
		expiresAt := now.Add(time.Duration(r.engine.AccessDurationDays(ctx)) * 24 * time.Hour)
		if err := r.requests.Activate(ctx, req.ID, activeCount+1, now, expiresAt); err != nil {
			return err
		}
		r.emit(notifications.Event{
			Type:      notifications.EventAccessGranted,
			RequestID: req.ID,
			Email:     req.Email,
			FullName:  req.FullName,
		})

	case ManualActionRemoved:
		if err := r.requests.MarkRemoved(ctx, req.ID, now); err != nil {
			return err
		}

	default:
		return models.NewValidationError("Action must be 'added' or 'removed'")
	}

	if err := r.audit.Log(ctx, models.AuditManualIntervention, &req.ID, map[string]string{
		"action": string(action),
	}, models.PerformedByAdmin); err != nil {
		return err
	}
	observability.StateTransitions.WithLabelValues(string(models.AuditManualIntervention)).Inc()
	return nil
}

// AutomationResult is one entry of an orchestration run report.
type AutomationResult struct {
	Action     string `json:"action"`
	RequestID  uint   `json:"request_id,omitempty"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	SlotNumber int    `json:"slot_number,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Report action tags.
const (
	ResultActionAdded    = "added"
	ResultActionRemoved  = "removed"
	ResultActionJobError = "job_error"
)

// ApplyResult reconciles one automation result into request state. Failures
// for one user never abort processing of the rest of the batch, so errors
// here are logged and audited rather than returned.
func (r *Reconciler) ApplyResult(ctx context.Context, result AutomationResult) {
	if result.Action == ResultActionJobError {
		if err := r.audit.Append(ctx, &models.AuditLogEntry{
			Action:       models.AuditJobError,
			Success:      false,
			ErrorMessage: result.Error,
			PerformedBy:  models.PerformedBySystem,
		}); err != nil {
			middleware.Logger.Error("failed to record job error audit entry",
				slog.String("error", err.Error()))
		}
		r.emit(notifications.Event{
			Type:    notifications.EventEscalation,
			Message: "Orchestration run aborted",
			Error:   result.Error,
		})
		return
	}

	req, err := r.requests.GetByID(ctx, result.RequestID)
	if err != nil {
		middleware.Logger.Error("cannot reconcile automation result, request lookup failed",
			slog.Uint64("request_id", uint64(result.RequestID)),
			slog.String("error", err.Error()),
		)
		return
	}

	switch {
	case result.Action == ResultActionAdded && result.Success:
		err = r.Activate(ctx, req, result.SlotNumber)
	case result.Action == ResultActionRemoved && result.Success:
		err = r.MarkExpired(ctx, req)
	default:
		_, err = r.MarkAutomationFailed(ctx, req, result.Error)
	}

	if err != nil {
		middleware.Logger.Error("automation result reconciliation failed",
			slog.Uint64("request_id", uint64(result.RequestID)),
			slog.String("action", result.Action),
			slog.String("error", err.Error()),
		)
	}
}

// WithClock overrides the time source. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}
