package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"greenroom/internal/middleware"
	"greenroom/internal/service"
)

// Reporter posts the run's result batch back to the web application so it can
// reflect reconciled state without polling.
type Reporter struct {
	url    string
	secret string
	client *http.Client
}

// NewReporter creates a Reporter. An empty url disables reporting.
func NewReporter(url, secret string) *Reporter {
	return &Reporter{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type runReport struct {
	RunID   string                     `json:"run_id"`
	Results []service.AutomationResult `json:"results"`
}

// Report delivers the batch. Delivery is best effort: the job already
// reconciled every result locally, so a failed report loses nothing but the
// push notification.
func (r *Reporter) Report(ctx context.Context, runID string, results []service.AutomationResult) error {
	if r.url == "" {
		middleware.Logger.Debug("no report URL configured, skipping run report")
		return nil
	}

	body, err := json.Marshal(runReport{RunID: runID, Results: results})
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.secret != "" {
		req.Header.Set("Authorization", "Bearer "+r.secret)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("report delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("report rejected with status %d", resp.StatusCode)
	}

	middleware.Logger.Info("run report delivered",
		slog.String("run_id", runID),
		slog.Int("results", len(results)),
	)
	return nil
}
