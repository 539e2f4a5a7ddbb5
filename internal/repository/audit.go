package repository

import (
	"context"
	"encoding/json"

	"greenroom/internal/models"

	"gorm.io/gorm"
)

// AuditRepository records and reads the append-only audit trail. The table
// has no update or delete operations.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	// Log is the common-case helper: marshal details, tag the actor, append.
	Log(ctx context.Context, action models.AuditAction, requestID *uint, details interface{}, performedBy string) error
	List(ctx context.Context, limit, offset int, action models.AuditAction) ([]models.AuditLogEntry, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository returns a new AuditRepository implementation.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.PerformedBy == "" {
		entry.PerformedBy = models.PerformedBySystem
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return mapStoreError(err)
	}
	return nil
}

func (r *auditRepository) Log(ctx context.Context, action models.AuditAction, requestID *uint, details interface{}, performedBy string) error {
	entry := &models.AuditLogEntry{
		Action:      action,
		RequestID:   requestID,
		PerformedBy: performedBy,
		Success:     true,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return models.NewInternalError(err)
		}
		entry.Details = string(raw)
	}
	return r.Append(ctx, entry)
}

func (r *auditRepository) List(ctx context.Context, limit, offset int, action models.AuditAction) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})
	if action != "" {
		query = query.Where("action = ?", action)
	}

	var entries []models.AuditLogEntry
	if err := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return entries, nil
}
