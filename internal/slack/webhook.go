package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"news_scanner/internal/domain"
)

// PlaceholderWebhookURL is the example value shipped in sample configs.
// Posting to it is skipped.
const PlaceholderWebhookURL = "https://hooks.slack.com/services/YOUR/WEBHOOK/URL"

// Webhook posts news items to a Slack incoming webhook.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhook creates a Webhook targeting url.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "slack_webhook"),
	}
}

// Enabled reports whether PostNews will make a network call.
func (w *Webhook) Enabled() bool {
	return w.url != "" && w.url != PlaceholderWebhookURL
}

type webhookPayload struct {
	Text string `json:"text"`
}

// PostNews sends a single item. It is a no-op when the webhook is not
// configured or still set to the placeholder URL.
func (w *Webhook) PostNews(ctx context.Context, item domain.SearchResult) error {
	if !w.Enabled() {
		w.logger.Debug("webhook not configured, skipping", "url", item.URL)
		return nil
	}

	payload, err := json.Marshal(webhookPayload{Text: FormatNews(item)})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &Error{Op: "webhook", Status: resp.StatusCode, Body: string(body)}
	}

	return nil
}
