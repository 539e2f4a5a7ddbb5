// Package queue holds the decision logic of the access queue: capacity math,
// promotion candidate selection and wait estimation. It never talks to the
// external dashboard and never sends notifications.
package queue

import (
	"context"
	"fmt"
	"math"

	"greenroom/internal/models"
	"greenroom/internal/repository"
)

// Engine computes queue positions, available capacity and promotion
// candidates over the request store.
type Engine struct {
	requests repository.AccessRequestRepository
	settings repository.SettingsRepository
	maxSlots int
	duration int
}

// NewEngine creates a queue engine. maxSlots and durationDays are the
// configured fallbacks; settings rows override them when present.
func NewEngine(requests repository.AccessRequestRepository, settings repository.SettingsRepository, maxSlots, durationDays int) *Engine {
	return &Engine{
		requests: requests,
		settings: settings,
		maxSlots: maxSlots,
		duration: durationDays,
	}
}

// MaxSlots returns the effective slot capacity.
func (e *Engine) MaxSlots(ctx context.Context) int {
	if e.settings != nil {
		return e.settings.GetInt(ctx, models.SettingMaxSlots, e.maxSlots)
	}
	return e.maxSlots
}

// AccessDurationDays returns the effective access window length.
func (e *Engine) AccessDurationDays(ctx context.Context) int {
	if e.settings != nil {
		return e.settings.GetInt(ctx, models.SettingAccessDurationDays, e.duration)
	}
	return e.duration
}

// AvailableSlots is the capacity left for promotion right now.
func (e *Engine) AvailableSlots(ctx context.Context) (int, error) {
	active, err := e.requests.CountByStatus(ctx, models.AccessStatusActive)
	if err != nil {
		return 0, err
	}
	return e.MaxSlots(ctx) - active, nil
}

// Position returns the 1-based queue rank of a pending request.
func (e *Engine) Position(ctx context.Context, req *models.AccessRequest) (int, error) {
	return e.requests.QueuePosition(ctx, req)
}

// SelectPromotionCandidates returns up to limit pending requests in strict
// submission order. A non-positive limit selects nothing.
func (e *Engine) SelectPromotionCandidates(ctx context.Context, limit int) ([]models.AccessRequest, error) {
	if limit <= 0 {
		return nil, nil
	}
	return e.requests.OldestPending(ctx, limit)
}

// promotionsPerWeek is the observed churn rate the wait estimate assumes:
// roughly 3-4 slots free up per week.
const promotionsPerWeek = 3.5

// EstimateWait turns a queue position into a human wait estimate.
func EstimateWait(position int) string {
	weeks := int(math.Ceil(float64(position) / promotionsPerWeek))
	if weeks <= 1 {
		return "~1 week or less"
	}
	return fmt.Sprintf("~%d weeks", weeks)
}
