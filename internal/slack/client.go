package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"news_scanner/internal/domain"
)

const DefaultBaseURL = "https://slack.com"

// Config holds Slack bot API configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client posts messages through the Slack Web API with a bot token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// New creates a Slack Web API client.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.Token,
		logger:     logger.With("component", "slack"),
	}
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage sends text to channel via chat.postMessage.
func (c *Client) PostMessage(ctx context.Context, channel, text string) error {
	const op = "chat.postMessage"

	payload, err := json.Marshal(postMessageRequest{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+op, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		code := out.Error
		if code == "" {
			code = "unknown_error"
		}
		return &Error{Op: op, Status: resp.StatusCode, Code: code, Body: string(body)}
	}

	c.logger.Debug("message posted", "channel", channel)
	return nil
}

// NormalizeChannel prefixes bare channel names with '#'. Channel IDs
// (starting with 'C') and names already carrying '#' are kept as is.
func NormalizeChannel(channel string) string {
	if channel == "" || strings.HasPrefix(channel, "#") || strings.HasPrefix(channel, "C") {
		return channel
	}
	return "#" + channel
}

// PostSummary posts the formatted result list of query to channel.
func (c *Client) PostSummary(ctx context.Context, channel, query string, results []domain.SearchResult) error {
	return c.PostMessage(ctx, NormalizeChannel(channel), FormatSummary(query, results))
}
