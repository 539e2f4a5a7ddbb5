package repository

import (
	"context"
	"errors"
	"strconv"

	"greenroom/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository reads and writes tunable engine parameters.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	// GetInt returns the integer value for key, or fallback when the key is
	// missing or malformed.
	GetInt(ctx context.Context, key string, fallback int) int
	GetBool(ctx context.Context, key string, fallback bool) bool
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]models.Setting, error)
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository returns a new SettingsRepository implementation.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", models.NewNotFoundError("Setting", key)
		}
		return "", mapStoreError(err)
	}
	return setting.Value, nil
}

func (r *settingsRepository) GetInt(ctx context.Context, key string, fallback int) int {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (r *settingsRepository) GetBool(ctx context.Context, key string, fallback bool) bool {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	return mapStoreError(err)
}

func (r *settingsRepository) All(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return settings, nil
}
