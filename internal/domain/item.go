package domain

import "time"

// SearchResult is a single hit returned by the search API.
// URL is the identifier used for deduplication.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	Date        string `json:"date,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// NewsItem is a previously unseen result together with the source it was found by.
type NewsItem struct {
	Source  string       `json:"source"`
	Query   string       `json:"query"`
	Result  SearchResult `json:"result"`
	FoundAt time.Time    `json:"found_at"`
}

// Query is the effective search request for one source.
type Query struct {
	Text          string
	MaxResults    int
	RecencyFilter string
	Domains       []string // nil means unfiltered
}
