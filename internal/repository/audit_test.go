package repository

import (
	"context"
	"testing"

	"greenroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	reqID := uint(42)
	require.NoError(t, repo.Log(ctx, models.AuditRequestSubmitted, &reqID, map[string]string{
		"email": "user@example.com",
	}, models.PerformedBySystem))
	require.NoError(t, repo.Log(ctx, models.AuditUserActivated, &reqID, map[string]interface{}{
		"slot_number": 3,
	}, models.PerformedBySystem))
	require.NoError(t, repo.Log(ctx, models.AuditManualIntervention, &reqID, nil, models.PerformedByAdmin))

	entries, err := repo.List(ctx, 50, 0, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	filtered, err := repo.List(ctx, 50, 0, models.AuditUserActivated)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, models.AuditUserActivated, filtered[0].Action)
	assert.Contains(t, filtered[0].Details, "slot_number")
	assert.True(t, filtered[0].Success)

	admin, err := repo.List(ctx, 50, 0, models.AuditManualIntervention)
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, models.PerformedByAdmin, admin[0].PerformedBy)
	assert.Empty(t, admin[0].Details)
}

func TestAuditListClampsLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Log(ctx, models.AuditRequestSubmitted, nil, nil, models.PerformedBySystem))
	}

	entries, err := repo.List(ctx, -1, -5, "")
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	entries, err = repo.List(ctx, 100000, 0, "")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestAuditAppendDefaultsActor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	entry := &models.AuditLogEntry{
		Action:       models.AuditJobError,
		Success:      false,
		ErrorMessage: "browser session crashed",
	}
	require.NoError(t, repo.Append(ctx, entry))

	entries, err := repo.List(ctx, 10, 0, models.AuditJobError)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.PerformedBySystem, entries[0].PerformedBy)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "browser session crashed", entries[0].ErrorMessage)
}

func TestSettingsRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, 25, repo.GetInt(ctx, models.SettingMaxSlots, 25))
	assert.True(t, repo.GetBool(ctx, models.SettingAutomationEnabled, true))

	require.NoError(t, repo.Set(ctx, models.SettingMaxSlots, "30"))
	assert.Equal(t, 30, repo.GetInt(ctx, models.SettingMaxSlots, 25))

	// Upsert overwrites in place.
	require.NoError(t, repo.Set(ctx, models.SettingMaxSlots, "10"))
	assert.Equal(t, 10, repo.GetInt(ctx, models.SettingMaxSlots, 25))

	// Malformed values fall back.
	require.NoError(t, repo.Set(ctx, models.SettingAccessDurationDays, "not-a-number"))
	assert.Equal(t, 7, repo.GetInt(ctx, models.SettingAccessDurationDays, 7))

	require.NoError(t, repo.Set(ctx, models.SettingAutomationEnabled, "false"))
	assert.False(t, repo.GetBool(ctx, models.SettingAutomationEnabled, true))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
