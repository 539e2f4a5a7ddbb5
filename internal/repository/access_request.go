// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"greenroom/internal/models"

	"gorm.io/gorm"
)

// AccessRequestRepository defines persistence operations for access requests.
// Transition setters validate against the state machine and fail closed on
// illegal moves.
type AccessRequestRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.AccessRequest, error)
	GetByID(ctx context.Context, id uint) (*models.AccessRequest, error)
	Create(ctx context.Context, req *models.AccessRequest) error
	// ResetForResubmission re-initializes a terminal-state row: status back to
	// pending, CreatedAt to now, all temporal and failure fields cleared.
	ResetForResubmission(ctx context.Context, id uint, fullName string, now time.Time) error

	CountByStatus(ctx context.Context, status models.AccessStatus) (int, error)
	ListByStatus(ctx context.Context, status models.AccessStatus, order string) ([]models.AccessRequest, error)
	// QueuePosition is 1 + the number of pending rows created strictly earlier.
	QueuePosition(ctx context.Context, req *models.AccessRequest) (int, error)
	OldestPending(ctx context.Context, limit int) ([]models.AccessRequest, error)
	ExpiredActive(ctx context.Context, now time.Time) ([]models.AccessRequest, error)
	NeedingExpiryWarning(ctx context.Context, before time.Time) ([]models.AccessRequest, error)
	CountActiveExpiringBetween(ctx context.Context, from, to time.Time) (int, error)
	RecentlyExpired(ctx context.Context, since time.Time, limit int) ([]models.AccessRequest, error)

	Activate(ctx context.Context, id uint, slotNumber int, activatedAt, expiresAt time.Time) error
	MarkExpired(ctx context.Context, id uint, removedAt time.Time) error
	MarkRemoved(ctx context.Context, id uint, removedAt time.Time) error
	// IncrementAutomationFailure bumps the attempt counter, records the error
	// text, and returns the new attempt count.
	IncrementAutomationFailure(ctx context.Context, id uint, errText string) (int, error)
	MarkFailed(ctx context.Context, id uint) error
	MarkExpiryWarningSent(ctx context.Context, id uint) error
	MarkExpiryNotificationSent(ctx context.Context, id uint) error
}

type accessRequestRepository struct {
	db *gorm.DB
}

// NewAccessRequestRepository returns a new AccessRequestRepository implementation.
func NewAccessRequestRepository(db *gorm.DB) AccessRequestRepository {
	return &accessRequestRepository{db: db}
}

func (r *accessRequestRepository) GetByEmail(ctx context.Context, email string) (*models.AccessRequest, error) {
	var req models.AccessRequest
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mapStoreError(err)
	}
	return &req, nil
}

func (r *accessRequestRepository) GetByID(ctx context.Context, id uint) (*models.AccessRequest, error) {
	var req models.AccessRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Access request", id)
		}
		return nil, mapStoreError(err)
	}
	return &req, nil
}

func (r *accessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	if req.Status == "" {
		req.Status = models.AccessStatusPending
	}
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Access request already exists for this email", nil)
		}
		return mapStoreError(err)
	}
	return nil
}

func (r *accessRequestRepository) ResetForResubmission(ctx context.Context, id uint, fullName string, now time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("id = ? AND status IN ?", id, models.TransitionSources(models.AccessStatusPending)).
		Updates(map[string]interface{}{
			"full_name":                fullName,
			"status":                   models.AccessStatusPending,
			"created_at":               now,
			"activated_at":             nil,
			"expires_at":               nil,
			"removed_at":               nil,
			"slot_number":              nil,
			"automation_attempts":      0,
			"last_automation_error":    "",
			"expiry_warning_sent":      false,
			"expiry_notification_sent": false,
		})
	if result.Error != nil {
		return mapStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewConflictError("Access request is not in a resubmittable state", nil)
	}
	return nil
}

func (r *accessRequestRepository) CountByStatus(ctx context.Context, status models.AccessStatus) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, mapStoreError(err)
	}
	return int(count), nil
}

func (r *accessRequestRepository) ListByStatus(ctx context.Context, status models.AccessStatus, order string) ([]models.AccessRequest, error) {
	if order == "" {
		order = "created_at ASC"
	}
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order(order).
		Find(&reqs).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return reqs, nil
}

func (r *accessRequestRepository) QueuePosition(ctx context.Context, req *models.AccessRequest) (int, error) {
	var ahead int64
	if err := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("status = ? AND created_at < ?", models.AccessStatusPending, req.CreatedAt).
		Count(&ahead).Error; err != nil {
		return 0, mapStoreError(err)
	}
	return int(ahead) + 1, nil
}

func (r *accessRequestRepository) OldestPending(ctx context.Context, limit int) ([]models.AccessRequest, error) {
	if limit <= 0 {
		return nil, nil
	}
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.AccessStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return reqs, nil
}

func (r *accessRequestRepository) ExpiredActive(ctx context.Context, now time.Time) ([]models.AccessRequest, error) {
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.AccessStatusActive, now).
		Find(&reqs).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return reqs, nil
}

func (r *accessRequestRepository) NeedingExpiryWarning(ctx context.Context, before time.Time) ([]models.AccessRequest, error) {
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ? AND expiry_warning_sent = ?",
			models.AccessStatusActive, before, false).
		Find(&reqs).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return reqs, nil
}

func (r *accessRequestRepository) CountActiveExpiringBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("status = ? AND expires_at >= ? AND expires_at < ?",
			models.AccessStatusActive, from, to).
		Count(&count).Error; err != nil {
		return 0, mapStoreError(err)
	}
	return int(count), nil
}

func (r *accessRequestRepository) RecentlyExpired(ctx context.Context, since time.Time, limit int) ([]models.AccessRequest, error) {
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND removed_at > ?",
			[]models.AccessStatus{models.AccessStatusExpired, models.AccessStatusRemoved}, since).
		Order("removed_at DESC").
		Limit(limit).
		Find(&reqs).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return reqs, nil
}

// transition applies updates moving the row into to, guarded by the status
// predicate derived from the models transition table. Zero rows affected
// means the move was illegal for the row's current state.
func (r *accessRequestRepository) transition(ctx context.Context, id uint, to models.AccessStatus, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("id = ? AND status IN ?", id, models.TransitionSources(to)).
		Updates(updates)
	if result.Error != nil {
		return mapStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		var req models.AccessRequest
		if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Access request", id)
			}
			return mapStoreError(err)
		}
		return models.NewConflictError("Invalid state transition from "+string(req.Status), nil)
	}
	return nil
}

func (r *accessRequestRepository) Activate(ctx context.Context, id uint, slotNumber int, activatedAt, expiresAt time.Time) error {
	return r.transition(ctx, id, models.AccessStatusActive, map[string]interface{}{
		"status":       models.AccessStatusActive,
		"activated_at": activatedAt,
		"expires_at":   expiresAt,
		"slot_number":  slotNumber,
	})
}

func (r *accessRequestRepository) MarkExpired(ctx context.Context, id uint, removedAt time.Time) error {
	return r.transition(ctx, id, models.AccessStatusExpired, map[string]interface{}{
		"status":     models.AccessStatusExpired,
		"removed_at": removedAt,
	})
}

func (r *accessRequestRepository) MarkRemoved(ctx context.Context, id uint, removedAt time.Time) error {
	return r.transition(ctx, id, models.AccessStatusRemoved, map[string]interface{}{
		"status":     models.AccessStatusRemoved,
		"removed_at": removedAt,
	})
}

func (r *accessRequestRepository) IncrementAutomationFailure(ctx context.Context, id uint, errText string) (int, error) {
	result := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"automation_attempts":   gorm.Expr("automation_attempts + 1"),
			"last_automation_error": errText,
		})
	if result.Error != nil {
		return 0, mapStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, models.NewNotFoundError("Access request", id)
	}

	var req models.AccessRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return 0, mapStoreError(err)
	}
	return req.AutomationAttempts, nil
}

func (r *accessRequestRepository) MarkFailed(ctx context.Context, id uint) error {
	return r.transition(ctx, id, models.AccessStatusFailed, map[string]interface{}{
		"status": models.AccessStatusFailed,
	})
}

func (r *accessRequestRepository) MarkExpiryWarningSent(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("id = ?", id).
		Update("expiry_warning_sent", true).Error
	return mapStoreError(err)
}

func (r *accessRequestRepository) MarkExpiryNotificationSent(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.AccessRequest{}).
		Where("id = ?", id).
		Update("expiry_notification_sent", true).Error
	return mapStoreError(err)
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505; sqlite reports "UNIQUE constraint failed"
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// mapStoreError translates driver errors into the domain taxonomy. Connection
// failures become StorageUnavailable; everything else is internal.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad connection") {
		return models.NewStorageUnavailableError(err)
	}
	return models.NewInternalError(err)
}
