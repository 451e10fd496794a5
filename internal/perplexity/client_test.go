package perplexity

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_scanner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "pplx-test", Timeout: 5 * time.Second}, testLogger())
}

func TestSearch_RequestAndResponse(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer pplx-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results":[
			{"title":"T1","url":"u1","snippet":"s","date":"2026-10-18"},
			{"title":"T2","url":"u2"}
		]}`)
	})

	results, err := client.Search(context.Background(), domain.Query{
		Text:          "Q",
		MaxResults:    50,
		RecencyFilter: "day",
		Domains:       []string{"a.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.SearchResult{
		{Title: "T1", URL: "u1", Snippet: "s", Date: "2026-10-18"},
		{Title: "T2", URL: "u2"},
	}, results)

	assert.Equal(t, "Q", got["query"])
	assert.EqualValues(t, 50, got["max_results"])
	assert.Equal(t, "day", got["search_recency_filter"])
	assert.Equal(t, []any{"a.com"}, got["search_domain_filter"])
}

func TestSearch_OmitsEmptyFilters(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"results":[]}`)
	})

	results, err := client.Search(context.Background(), domain.Query{Text: "Q", MaxResults: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NotContains(t, got, "search_domain_filter")
	assert.NotContains(t, got, "search_recency_filter")
}

func TestSearch_ClampsMaxResults(t *testing.T) {
	tests := []struct {
		in   int
		want float64
	}{
		{0, 1},
		{-5, 1},
		{50, 50},
		{500, 100},
	}

	for _, tt := range tests {
		var got map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			io.WriteString(w, `{"results":[]}`)
		})

		_, err := client.Search(context.Background(), domain.Query{Text: "Q", MaxResults: tt.in})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got["max_results"], "max_results=%d", tt.in)
	}
}

func TestSearch_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "invalid api key\nsecond line")
	})

	_, err := client.Search(context.Background(), domain.Query{Text: "Q"})
	require.Error(t, err)

	assert.True(t, IsAuth(err))
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
	assert.Equal(t, "invalid api key", pe.Body)
	assert.Contains(t, err.Error(), "PERPLEXITY_API_KEY")
}

func TestSearch_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"slow down"}`)
	})

	_, err := client.Search(context.Background(), domain.Query{Text: "Q"})
	require.Error(t, err)

	assert.Equal(t, KindAPI, KindOf(err))
	assert.False(t, IsAuth(err))
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestSearch_ParseError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>")
	})

	_, err := client.Search(context.Background(), domain.Query{Text: "Q"})
	assert.Equal(t, KindParse, KindOf(err))
}

func TestSearch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, testLogger())

	_, err := client.Search(context.Background(), domain.Query{Text: "Q"})
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestComplete(t *testing.T) {
	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`)
	})

	text, err := client.Complete(context.Background(), "what happened?")
	require.NoError(t, err)

	assert.Equal(t, "answer", text)
	assert.Equal(t, "sonar", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, chatMessage{Role: "user", Content: "what happened?"}, got.Messages[0])
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})

	text, err := client.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestComplete_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Complete(context.Background(), "q")
	assert.True(t, IsAuth(err))
}
