package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"greenroom/internal/models"
	"greenroom/internal/queue"
	"greenroom/internal/repository"
	"greenroom/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type jobFixture struct {
	db       *gorm.DB
	requests repository.AccessRequestRepository
	engine   *queue.Engine
	job      func(actor Actor) *Job
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AccessRequest{}, &models.AuditLogEntry{}, &models.Setting{}))

	requests := repository.NewAccessRequestRepository(db)
	audit := repository.NewAuditRepository(db)
	settings := repository.NewSettingsRepository(db)
	engine := queue.NewEngine(requests, settings, 25, 7)
	reconciler := service.NewReconciler(requests, audit, engine, nil)
	sweeper := service.NewSweeper(requests, settings, nil, 1)

	return &jobFixture{
		db:       db,
		requests: requests,
		engine:   engine,
		job: func(actor Actor) *Job {
			return NewJob(engine, sweeper, reconciler, actor, nil, nil, nil, 0)
		},
	}
}

// recordingActor captures the operation sequence and scripts failures.
type recordingActor struct {
	opens      int
	closes     int
	added      []string
	removed    []string
	openErr    error
	failRemove bool
	failAdd    bool
}

func (a *recordingActor) Open(_ context.Context) error {
	a.opens++
	return a.openErr
}

func (a *recordingActor) AddUser(_ context.Context, _, email string) Outcome {
	a.added = append(a.added, email)
	if a.failAdd {
		return Outcome{Error: "add form did not load"}
	}
	return Outcome{Success: true}
}

func (a *recordingActor) RemoveUser(_ context.Context, email string) Outcome {
	a.removed = append(a.removed, email)
	if a.failRemove {
		return Outcome{Error: "remove button not found"}
	}
	return Outcome{Success: true}
}

func (a *recordingActor) Close(_ context.Context) error {
	a.closes++
	return nil
}

func seedActive(t *testing.T, db *gorm.DB, n int, expiredCount int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		slot := i + 1
		activated := now.Add(-6 * 24 * time.Hour)
		expires := now.Add(24 * time.Hour)
		if i < expiredCount {
			expires = now.Add(-time.Hour)
		}
		require.NoError(t, db.Create(&models.AccessRequest{
			Email:       fmt.Sprintf("active%d@example.com", i),
			FullName:    "Active User",
			Status:      models.AccessStatusActive,
			CreatedAt:   activated,
			ActivatedAt: &activated,
			ExpiresAt:   &expires,
			SlotNumber:  &slot,
		}).Error)
	}
}

func seedPending(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	base := time.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&models.AccessRequest{
			Email:     fmt.Sprintf("pending%d@example.com", i),
			FullName:  "Pending User",
			Status:    models.AccessStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}
}

func TestJobRunFullQueueOneExpiry(t *testing.T) {
	f := newJobFixture(t)
	actor := &recordingActor{}
	ctx := context.Background()

	seedActive(t, f.db, 25, 1)
	seedPending(t, f.db, 3)

	results, err := f.job(actor).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, actor.opens)
	assert.Equal(t, 1, actor.closes)
	assert.Equal(t, []string{"active0@example.com"}, actor.removed)
	// Exactly one slot freed, the oldest pending request takes it.
	assert.Equal(t, []string{"pending0@example.com"}, actor.added)

	require.Len(t, results, 2)
	assert.False(t, Failed(results))
	assert.Equal(t, service.ResultActionRemoved, results[0].Action)
	assert.Equal(t, service.ResultActionAdded, results[1].Action)
	assert.Equal(t, 25, results[1].SlotNumber)

	promoted, err := f.requests.GetByEmail(ctx, "pending0@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusActive, promoted.Status)

	retired, err := f.requests.GetByEmail(ctx, "active0@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusExpired, retired.Status)
}

func TestJobRunPromotesIntoFreeCapacity(t *testing.T) {
	f := newJobFixture(t)
	actor := &recordingActor{}
	ctx := context.Background()

	seedActive(t, f.db, 20, 0)
	seedPending(t, f.db, 8)

	results, err := f.job(actor).Run(ctx)
	require.NoError(t, err)

	assert.Empty(t, actor.removed)
	require.Len(t, actor.added, 5)
	require.Len(t, results, 5)

	// Slot numbers continue past the current holders.
	for i, r := range results {
		assert.Equal(t, 20+i+1, r.SlotNumber)
		assert.Equal(t, fmt.Sprintf("pending%d@example.com", i), r.Email)
	}
}

func TestJobRunFailedRemovalBlocksPromotion(t *testing.T) {
	f := newJobFixture(t)
	actor := &recordingActor{failRemove: true}
	ctx := context.Background()

	seedActive(t, f.db, 25, 1)
	seedPending(t, f.db, 2)

	results, err := f.job(actor).Run(ctx)
	require.NoError(t, err)

	// The slot was not freed, so nobody is promoted.
	assert.Empty(t, actor.added)
	require.Len(t, results, 1)
	assert.True(t, Failed(results))

	stuck, err := f.requests.GetByEmail(ctx, "active0@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusActive, stuck.Status)
	assert.Equal(t, 1, stuck.AutomationAttempts)
}

func TestJobRunFailedAddIncrementsAttempts(t *testing.T) {
	f := newJobFixture(t)
	actor := &recordingActor{failAdd: true}
	ctx := context.Background()

	seedPending(t, f.db, 1)

	results, err := f.job(actor).Run(ctx)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, service.ResultActionAdded, results[0].Action)
	assert.True(t, Failed(results))

	req, err := f.requests.GetByEmail(ctx, "pending0@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusPending, req.Status)
	assert.Equal(t, 1, req.AutomationAttempts)
}

func TestJobRunAbortRecordsJobError(t *testing.T) {
	f := newJobFixture(t)
	actor := &recordingActor{openErr: errors.New("login page unreachable")}
	ctx := context.Background()

	seedPending(t, f.db, 1)

	results, err := f.job(actor).Run(ctx)
	require.NoError(t, err)

	// The actor is closed even when the session never opened cleanly.
	assert.Equal(t, 1, actor.closes)

	require.Len(t, results, 1)
	assert.Equal(t, service.ResultActionJobError, results[0].Action)
	assert.Contains(t, results[0].Error, "login page unreachable")
	assert.True(t, Failed(results))
}
