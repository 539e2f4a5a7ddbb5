package service

import (
	"context"
	"log/slog"
	"time"

	"greenroom/internal/middleware"
	"greenroom/internal/models"
	"greenroom/internal/notifications"
	"greenroom/internal/repository"
)

// Sweeper identifies active requests whose access window has elapsed or is
// about to, and dispatches idempotent expiry warnings.
type Sweeper struct {
	requests    repository.AccessRequestRepository
	settings    repository.SettingsRepository
	dispatcher  *notifications.Dispatcher
	warningDays int
	now         func() time.Time
}

// NewSweeper creates a Sweeper. warningDays is the configured fallback for
// the warning window; the settings row overrides it.
func NewSweeper(requests repository.AccessRequestRepository, settings repository.SettingsRepository, dispatcher *notifications.Dispatcher, warningDays int) *Sweeper {
	return &Sweeper{
		requests:    requests,
		settings:    settings,
		dispatcher:  dispatcher,
		warningDays: warningDays,
		now:         time.Now,
	}
}

// Expired returns all active requests whose window is strictly in the past.
func (s *Sweeper) Expired(ctx context.Context) ([]models.AccessRequest, error) {
	return s.requests.ExpiredActive(ctx, s.now())
}

// warningWindow is the effective look-ahead for expiry warnings.
func (s *Sweeper) warningWindow(ctx context.Context) time.Duration {
	days := s.warningDays
	if s.settings != nil {
		days = s.settings.GetInt(ctx, models.SettingExpiryWarningDays, s.warningDays)
	}
	return time.Duration(days) * 24 * time.Hour
}

// NeedingWarning returns active requests expiring within the warning window
// that have not been warned yet.
func (s *Sweeper) NeedingWarning(ctx context.Context) ([]models.AccessRequest, error) {
	return s.requests.NeedingExpiryWarning(ctx, s.now().Add(s.warningWindow(ctx)))
}

// DispatchWarnings emits an expiry warning for each candidate and sets the
// idempotency flag so the same window never warns twice. Returns how many
// warnings were dispatched.
func (s *Sweeper) DispatchWarnings(ctx context.Context) (int, error) {
	candidates, err := s.NeedingWarning(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range candidates {
		req := &candidates[i]
		// Flag first: a duplicate email is worse than a missed one here,
		// and the next sweep retries nothing that was already claimed.
		if err := s.requests.MarkExpiryWarningSent(ctx, req.ID); err != nil {
			middleware.Logger.Error("failed to mark expiry warning sent",
				slog.Uint64("request_id", uint64(req.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if s.dispatcher != nil {
			s.dispatcher.Emit(notifications.Event{
				Type:      notifications.EventExpiryWarning,
				RequestID: req.ID,
				Email:     req.Email,
				FullName:  req.FullName,
			})
		}
		sent++
	}
	return sent, nil
}

// Run loops DispatchWarnings on the given interval until ctx is cancelled.
// Intended as a background goroutine of the server process.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sent, err := s.DispatchWarnings(ctx); err != nil {
				middleware.Logger.Error("expiry warning sweep failed", slog.String("error", err.Error()))
			} else if sent > 0 {
				middleware.Logger.Info("expiry warnings dispatched", slog.Int("count", sent))
			}
		}
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}
