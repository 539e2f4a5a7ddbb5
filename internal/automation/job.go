package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"greenroom/internal/middleware"
	"greenroom/internal/notifications"
	"greenroom/internal/observability"
	"greenroom/internal/queue"
	"greenroom/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// runLockKey guards against overlapping scheduler triggers. The TTL covers a
// hung actor session; a crashed run frees the lock when it expires.
const (
	runLockKey = "automation:run-lock"
	runLockTTL = 15 * time.Minute
)

// Job is one orchestration run: sweep expired users off the dashboard, then
// fill freed slots with the oldest pending requests, reconciling every
// outcome and reporting the aggregate.
type Job struct {
	engine     *queue.Engine
	sweeper    *service.Sweeper
	reconciler *service.Reconciler
	actor      Actor
	reporter   *Reporter
	dispatcher *notifications.Dispatcher
	rdb        *redis.Client

	// pause is the courtesy delay between dashboard operations.
	pause time.Duration
	now   func() time.Time
}

// NewJob wires an orchestration job. rdb may be nil, in which case runs are
// not mutually excluded (single-instance scheduler deployment). reporter and
// dispatcher may be nil.
func NewJob(engine *queue.Engine, sweeper *service.Sweeper, reconciler *service.Reconciler, actor Actor, reporter *Reporter, dispatcher *notifications.Dispatcher, rdb *redis.Client, pause time.Duration) *Job {
	return &Job{
		engine:     engine,
		sweeper:    sweeper,
		reconciler: reconciler,
		actor:      actor,
		reporter:   reporter,
		dispatcher: dispatcher,
		rdb:        rdb,
		pause:      pause,
		now:        time.Now,
	}
}

// ErrRunInProgress reports that another orchestration run holds the lock.
var ErrRunInProgress = fmt.Errorf("another automation run is in progress")

func (j *Job) acquireLock(ctx context.Context, runID string) (func(), error) {
	if j.rdb == nil {
		return func() {}, nil
	}
	ok, err := j.rdb.SetNX(ctx, runLockKey, runID, runLockTTL).Result()
	if err != nil {
		// Redis being down should not stop the scheduled run.
		middleware.Logger.Warn("run lock unavailable, proceeding without it",
			slog.String("error", err.Error()))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		if val, err := j.rdb.Get(context.Background(), runLockKey).Result(); err == nil && val == runID {
			j.rdb.Del(context.Background(), runLockKey)
		}
	}, nil
}

// Run executes one orchestration pass and returns every operation attempted.
// A job-level abort is recorded as a synthetic job_error result; the actor is
// always closed and the report is always attempted.
func (j *Job) Run(ctx context.Context) ([]service.AutomationResult, error) {
	runID := uuid.NewString()
	start := j.now()
	logger := middleware.Logger.With(slog.String("run_id", runID))

	release, err := j.acquireLock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer release()

	logger.Info("automation run started")

	var results []service.AutomationResult

	runErr := j.execute(ctx, logger, &results)
	if runErr != nil {
		logger.Error("automation run aborted", slog.String("error", runErr.Error()))
		results = append(results, service.AutomationResult{
			Action:  service.ResultActionJobError,
			Success: false,
			Error:   runErr.Error(),
		})
		j.reconciler.ApplyResult(ctx, results[len(results)-1])
	}

	// Actor resources are released exactly once per run, success or not.
	if err := j.actor.Close(ctx); err != nil {
		logger.Error("actor close failed", slog.String("error", err.Error()))
	}

	if j.reporter != nil && len(results) > 0 {
		if err := j.reporter.Report(ctx, runID, results); err != nil {
			logger.Error("result report failed", slog.String("error", err.Error()))
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	observability.JobDuration.Observe(j.now().Sub(start).Seconds())
	logger.Info("automation run completed",
		slog.Int("operations", len(results)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", j.now().Sub(start)),
	)

	if j.dispatcher != nil {
		j.dispatcher.Emit(notifications.Event{
			Type:    notifications.EventJobReport,
			Message: fmt.Sprintf("Automation run finished: %d operations, %d failed", len(results), failed),
		})
	}

	return results, nil
}

// execute performs the two phases. Results are appended through the pointer
// so partial progress survives an abort.
func (j *Job) execute(ctx context.Context, logger *slog.Logger, results *[]service.AutomationResult) error {
	available, err := j.engine.AvailableSlots(ctx)
	if err != nil {
		return fmt.Errorf("capacity query failed: %w", err)
	}
	maxSlots := j.engine.MaxSlots(ctx)
	activeCount := maxSlots - available

	if err := j.actor.Open(ctx); err != nil {
		return fmt.Errorf("actor session failed to open: %w", err)
	}

	// Phase 1: remove expired users. Freed capacity must be visible before
	// promotion selection.
	expired, err := j.sweeper.Expired(ctx)
	if err != nil {
		return fmt.Errorf("expired sweep failed: %w", err)
	}
	logger.Info("processing expired users", slog.Int("count", len(expired)))

	removedOK := 0
	for i := range expired {
		user := &expired[i]
		outcome := j.actor.RemoveUser(ctx, user.Email)

		result := service.AutomationResult{
			Action:    service.ResultActionRemoved,
			RequestID: user.ID,
			Email:     user.Email,
			FullName:  user.FullName,
			Success:   outcome.Success,
			Error:     outcome.Error,
		}
		*results = append(*results, result)
		j.reconciler.ApplyResult(ctx, result)
		if outcome.Success {
			removedOK++
		}

		j.sleep(ctx)
	}

	// Phase 2: promote the oldest pending requests into freed capacity.
	availableSlots := maxSlots - activeCount + removedOK
	logger.Info("capacity recomputed",
		slog.Int("active_before", activeCount),
		slog.Int("removed", removedOK),
		slog.Int("available_slots", availableSlots),
	)

	if availableSlots <= 0 {
		logger.Info("no available slots")
		return nil
	}

	candidates, err := j.engine.SelectPromotionCandidates(ctx, availableSlots)
	if err != nil {
		return fmt.Errorf("promotion selection failed: %w", err)
	}
	logger.Info("processing pending users", slog.Int("count", len(candidates)))

	for i := range candidates {
		user := &candidates[i]
		slotNumber := activeCount - removedOK + i + 1

		outcome := j.actor.AddUser(ctx, user.FullName, user.Email)

		result := service.AutomationResult{
			Action:     service.ResultActionAdded,
			RequestID:  user.ID,
			Email:      user.Email,
			FullName:   user.FullName,
			SlotNumber: slotNumber,
			Success:    outcome.Success,
			Error:      outcome.Error,
		}
		*results = append(*results, result)
		j.reconciler.ApplyResult(ctx, result)

		j.sleep(ctx)
	}

	return nil
}

func (j *Job) sleep(ctx context.Context) {
	if j.pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(j.pause):
	}
}

// Failed reports whether any result in a run was unsuccessful; schedulers use
// it to flag degraded runs via exit status.
func Failed(results []service.AutomationResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}
