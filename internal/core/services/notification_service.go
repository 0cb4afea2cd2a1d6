package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"libraryhub/internal/core/domain"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============================================================
// Log notifier
// ============================================================

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.logger.Info("notification",
		slog.String("id", note.ID),
		slog.String("recipient", note.Recipient),
		slog.String("subject", note.Subject),
		slog.String("reference_type", note.ReferenceType),
		slog.Uint64("reference_id", uint64(note.ReferenceID)))
	return nil
}

// ============================================================
// Webhook notifier
// ============================================================

// WebhookNotifier POSTs notifications as JSON to a fixed URL
type WebhookNotifier struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	enabled bool
}

// NewWebhookNotifier creates a webhook notifier; an empty url disables it
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		enabled: url != "",
	}
}

// IsEnabled checks if a webhook url is configured
func (n *WebhookNotifier) IsEnabled() bool {
	return n.enabled
}

// Notify sends the notification in the background. Delivery errors are
// logged and never reach the caller.
func (n *WebhookNotifier) Notify(_ context.Context, note domain.Notification) error {
	if !n.enabled {
		return nil
	}
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	go func() {
		if err := n.send(body); err != nil {
			n.logger.Warn("webhook delivery failed",
				slog.String("notification_id", note.ID),
				slog.Any("error", err))
		}
	}()
	return nil
}

// Send delivers one notification synchronously
func (n *WebhookNotifier) Send(note domain.Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.send(body)
}

func (n *WebhookNotifier) send(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// ============================================================
// Fan-out
// ============================================================

// MultiNotifier sends each notification to every wrapped notifier
type MultiNotifier []Notifier

// Notify calls every notifier and returns the first error
func (m MultiNotifier) Notify(ctx context.Context, note domain.Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && first == nil {
			first = err
		}
	}
	return first
}
