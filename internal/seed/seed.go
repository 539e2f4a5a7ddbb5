// Package seed provides helpers to create demo data for the application
// database. Intended for development and testing only.
package seed

import (
	"fmt"
	"time"

	"greenroom/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options controls the shape of the seeded population.
type Options struct {
	Active   int
	Pending  int
	Expired  int
	Failed   int
	MaxSlots int
	Wipe     bool
}

// DefaultOptions seeds a nearly-full queue with a realistic backlog.
func DefaultOptions() Options {
	return Options{
		Active:   22,
		Pending:  40,
		Expired:  8,
		Failed:   2,
		MaxSlots: 25,
	}
}

// Factory builds access requests and persists them.
type Factory struct {
	db *gorm.DB
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{db: db}
}

// CreateRequest constructs and persists a sample access request. Optional
// override functions modify the generated row before saving.
func (f *Factory) CreateRequest(overrides ...func(*models.AccessRequest)) (*models.AccessRequest, error) {
	req := &models.AccessRequest{
		Email:     gofakeit.Email(),
		FullName:  gofakeit.Name(),
		Status:    models.AccessStatusPending,
		CreatedAt: time.Now().Add(-time.Duration(gofakeit.Number(1, 30*24)) * time.Hour),
	}
	for _, override := range overrides {
		override(req)
	}
	if err := f.db.Create(req).Error; err != nil {
		return nil, fmt.Errorf("failed to seed access request: %w", err)
	}
	return req, nil
}

// Run populates the database per opts.
func Run(db *gorm.DB, opts Options) error {
	if opts.Wipe {
		if err := db.Exec("DELETE FROM audit_log").Error; err != nil {
			return err
		}
		if err := db.Exec("DELETE FROM access_requests").Error; err != nil {
			return err
		}
	}

	f := NewFactory(db)
	now := time.Now()

	for i := 0; i < opts.Active; i++ {
		slot := i + 1
		activated := now.Add(-time.Duration(gofakeit.Number(0, 6*24)) * time.Hour)
		expires := activated.Add(7 * 24 * time.Hour)
		if _, err := f.CreateRequest(func(r *models.AccessRequest) {
			r.Status = models.AccessStatusActive
			r.SlotNumber = &slot
			r.ActivatedAt = &activated
			r.ExpiresAt = &expires
			r.CreatedAt = activated.Add(-time.Duration(gofakeit.Number(1, 14*24)) * time.Hour)
		}); err != nil {
			return err
		}
	}

	for i := 0; i < opts.Pending; i++ {
		if _, err := f.CreateRequest(); err != nil {
			return err
		}
	}

	for i := 0; i < opts.Expired; i++ {
		activated := now.Add(-time.Duration(gofakeit.Number(8, 30)) * 24 * time.Hour)
		expires := activated.Add(7 * 24 * time.Hour)
		removed := expires.Add(time.Duration(gofakeit.Number(1, 24)) * time.Hour)
		if _, err := f.CreateRequest(func(r *models.AccessRequest) {
			r.Status = models.AccessStatusExpired
			r.ActivatedAt = &activated
			r.ExpiresAt = &expires
			r.RemovedAt = &removed
			r.CreatedAt = activated.Add(-time.Duration(gofakeit.Number(1, 14*24)) * time.Hour)
		}); err != nil {
			return err
		}
	}

	for i := 0; i < opts.Failed; i++ {
		if _, err := f.CreateRequest(func(r *models.AccessRequest) {
			r.Status = models.AccessStatusFailed
			r.AutomationAttempts = 3
			r.LastAutomationError = "dashboard session timed out"
		}); err != nil {
			return err
		}
	}

	return nil
}
