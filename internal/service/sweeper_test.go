package service

import (
	"context"
	"testing"
	"time"

	"greenroom/internal/models"
	"greenroom/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperExpired(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewSweeper(f.requests, f.settings, nil, 1).WithClock(func() time.Time { return now })
	ctx := context.Background()

	past := now.Add(-time.Hour)
	future := now.Add(48 * time.Hour)

	require.NoError(t, f.db.Create(&models.AccessRequest{
		Email: "over@example.com", FullName: "Over", Status: models.AccessStatusActive, ExpiresAt: &past,
	}).Error)
	require.NoError(t, f.db.Create(&models.AccessRequest{
		Email: "still@example.com", FullName: "Still", Status: models.AccessStatusActive, ExpiresAt: &future,
	}).Error)

	expired, err := s.Expired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "over@example.com", expired[0].Email)
}

func TestDispatchWarningsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dispatcher := notifications.NewDispatcher(notifications.LogEmailSender{}, nil)
	s := NewSweeper(f.requests, f.settings, dispatcher, 1).WithClock(func() time.Time { return now })
	ctx := context.Background()

	soon := now.Add(12 * time.Hour)
	require.NoError(t, f.db.Create(&models.AccessRequest{
		Email: "ending@example.com", FullName: "Ending", Status: models.AccessStatusActive, ExpiresAt: &soon,
	}).Error)

	sent, err := s.DispatchWarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, dispatcher.QueuedEvents())

	// A second sweep of the same window warns nobody twice.
	sent, err = s.DispatchWarnings(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, dispatcher.QueuedEvents())
}

func TestSweeperWarningWindowSettingOverride(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewSweeper(f.requests, f.settings, nil, 1).WithClock(func() time.Time { return now })
	ctx := context.Background()

	// Expires in 2 days: outside the default 1-day window.
	in2d := now.Add(2 * 24 * time.Hour).Add(-time.Hour)
	require.NoError(t, f.db.Create(&models.AccessRequest{
		Email: "midweek@example.com", FullName: "Midweek", Status: models.AccessStatusActive, ExpiresAt: &in2d,
	}).Error)

	candidates, err := s.NeedingWarning(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	require.NoError(t, f.settings.Set(ctx, models.SettingExpiryWarningDays, "3"))

	candidates, err = s.NeedingWarning(ctx)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}
