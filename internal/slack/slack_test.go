package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_scanner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostMessage(t *testing.T) {
	var got postMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "xoxb-test", Timeout: time.Second}, testLogger())

	require.NoError(t, c.PostMessage(context.Background(), "#news", "hello"))
	assert.Equal(t, postMessageRequest{Channel: "#news", Text: "hello"}, got)
}

func TestPostMessage_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "t", Timeout: time.Second}, testLogger())

	err := c.PostMessage(context.Background(), "#missing", "hello")
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "channel_not_found", se.Code)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestPostMessage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "t", Timeout: time.Second}, testLogger())

	err := c.PostMessage(context.Background(), "#news", "hello")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "boom", se.Body)
}

func TestWebhook_PostNews(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, testLogger())

	err := wh.PostNews(context.Background(), domain.SearchResult{Title: "T1", URL: "https://a.com/1"})
	require.NoError(t, err)
	assert.Equal(t, "📰 *T1*\n<https://a.com/1|Open>", got.Text)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "invalid_token")
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, testLogger())

	err := wh.PostNews(context.Background(), domain.SearchResult{Title: "T", URL: "u"})
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Status)
}

type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, http.ErrHandlerTimeout
}

func TestWebhook_PlaceholderSkipped(t *testing.T) {
	transport := &countingTransport{}

	for _, url := range []string{PlaceholderWebhookURL, ""} {
		wh := NewWebhook(url, time.Second, testLogger())
		wh.httpClient.Transport = transport

		assert.False(t, wh.Enabled())
		assert.NoError(t, wh.PostNews(context.Background(), domain.SearchResult{Title: "T", URL: "u"}))
	}
	assert.Zero(t, transport.calls.Load())
}

func TestNormalizeChannel(t *testing.T) {
	assert.Equal(t, "#news", NormalizeChannel("news"))
	assert.Equal(t, "#news", NormalizeChannel("#news"))
	assert.Equal(t, "C0123ABC", NormalizeChannel("C0123ABC"))
	assert.Equal(t, "", NormalizeChannel(""))
}

func TestFormatSummary(t *testing.T) {
	text := FormatSummary("Q", []domain.SearchResult{
		{Title: "T1", URL: "u1", Date: "2026-10-18"},
		{Title: "T2", URL: "u2"},
	})

	assert.Equal(t, "*Q* (2 results)\n1. <u1|T1> (2026-10-18)\n2. <u2|T2>", text)
}
