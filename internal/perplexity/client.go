package perplexity

import (
	"bufio"
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

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	MaxResultsCap  = 100

	completionModel     = "sonar"
	completionMaxTokens = 1024
	maxErrorBody        = 64 << 10
)

// Config holds Perplexity client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the Perplexity search and chat completions endpoints.
// It does not retry; a failed call is reported once.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// New creates a new Perplexity client.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger.With("component", "perplexity"),
	}
}

// Search runs a filtered web search. The domain filter is omitted when
// q.Domains is empty.
func (c *Client) Search(ctx context.Context, q domain.Query) ([]domain.SearchResult, error) {
	body := searchRequest{
		Query:               q.Text,
		MaxResults:          clampMaxResults(q.MaxResults),
		SearchRecencyFilter: q.RecencyFilter,
	}
	if len(q.Domains) > 0 {
		body.SearchDomainFilter = q.Domains
	}

	var resp searchResponse
	if err := c.post(ctx, "search", "/search", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("search completed",
		"query", q.Text,
		"domains", len(q.Domains),
		"results", len(resp.Results),
	)

	return resp.Results, nil
}

// Complete sends prompt as a single user message and returns the answer text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body := completionRequest{
		Model:     completionModel,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: completionMaxTokens,
	}

	var resp completionResponse
	if err := c.post(ctx, "completions", "/chat/completions", body, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &Error{Kind: KindParse, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "NewsScanner/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindAPI
		if resp.StatusCode == http.StatusUnauthorized {
			kind = KindAuth
		}
		return &Error{
			Kind:   kind,
			Op:     op,
			Status: resp.StatusCode,
			Body:   firstLine(resp.Body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindParse, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func clampMaxResults(n int) int {
	return max(1, min(n, MaxResultsCap))
}

func firstLine(r io.Reader) string {
	sc := bufio.NewScanner(io.LimitReader(r, maxErrorBody))
	sc.Buffer(make([]byte, 0, 4096), maxErrorBody)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}
