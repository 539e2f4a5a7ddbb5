package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"greenroom/internal/middleware"
)

// LogEmailSender is the fallback sender used when no email provider is
// configured: notifications show up in the logs instead of disappearing.
type LogEmailSender struct{}

func (LogEmailSender) SendAccessGranted(_ context.Context, email, fullName string) error {
	middleware.Logger.Info("email provider not configured, skipping access granted email",
		slog.String("email", email), slog.String("full_name", fullName))
	return nil
}

func (LogEmailSender) SendExpiryWarning(_ context.Context, email, fullName string) error {
	middleware.Logger.Info("email provider not configured, skipping expiry warning email",
		slog.String("email", email), slog.String("full_name", fullName))
	return nil
}

func (LogEmailSender) SendAccessExpired(_ context.Context, email, fullName string) error {
	middleware.Logger.Info("email provider not configured, skipping access expired email",
		slog.String("email", email), slog.String("full_name", fullName))
	return nil
}

// WebhookAdminSender posts admin alerts to a chat webhook. Payload shape
// follows the Slack-compatible text/blocks convention.
type WebhookAdminSender struct {
	URL     string
	AppName string
	Client  *http.Client
}

// NewWebhookAdminSender builds a sender for the given webhook URL. An empty
// URL yields a sender that logs instead of posting.
func NewWebhookAdminSender(url, appName string) *WebhookAdminSender {
	return &WebhookAdminSender{
		URL:     url,
		AppName: appName,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookAdminSender) SendAdminAlert(ctx context.Context, event Event) error {
	if s.URL == "" {
		middleware.Logger.Info("admin webhook not configured, logging alert",
			slog.String("event", string(event.Type)),
			slog.String("message", event.Message),
			slog.String("error", event.Error),
		)
		return nil
	}

	text := fmt.Sprintf("[%s Access Manager] %s", s.AppName, event.Message)
	payload := map[string]interface{}{
		"text": text,
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s*\n%s", event.Type, event.Message),
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("admin webhook returned status %d", resp.StatusCode)
	}
	return nil
}
