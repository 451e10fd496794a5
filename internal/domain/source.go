package domain

import (
	"strings"
	"time"
)

// Source is one configured query unit. Immutable after config load.
type Source struct {
	Name       string
	Sites      []string
	Query      string
	Interval   time.Duration
	Channel    string // optional Slack destination override
	MaxResults int    // 0 uses the global default
}

// Domains returns the configured sites reduced to bare hosts.
func (s Source) Domains() []string {
	domains := make([]string, 0, len(s.Sites))
	for _, site := range s.Sites {
		domains = append(domains, NormalizeDomain(site))
	}
	return domains
}

// BuildQuery merges global defaults with the source's own filters.
func (s Source) BuildQuery(maxResults int, recencyFilter string) Query {
	if s.MaxResults > 0 {
		maxResults = s.MaxResults
	}
	q := Query{
		Text:          s.Query,
		MaxResults:    maxResults,
		RecencyFilter: recencyFilter,
	}
	if len(s.Sites) > 0 {
		q.Domains = s.Domains()
	}
	return q
}

// NormalizeDomain strips the scheme, path and query string from a site,
// e.g. "https://example.com/path?x=1" becomes "example.com".
func NormalizeDomain(site string) string {
	s := strings.TrimSpace(site)
	rest := s
	if after, ok := strings.CutPrefix(s, "https://"); ok {
		rest = after
	} else if after, ok := strings.CutPrefix(s, "http://"); ok {
		rest = after
	}

	host, _, _ := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, "?")
	if host == "" {
		return s
	}
	return host
}

// RunState tracks the last successful completion of a source.
// A zero LastRun means the source has never run.
type RunState struct {
	LastRun time.Time
}

// HasRun reports whether the source completed at least once.
func (r RunState) HasRun() bool {
	return !r.LastRun.IsZero()
}

// IsDue reports whether a source with the given interval should run at now.
func IsDue(state RunState, interval time.Duration, now time.Time) bool {
	if !state.HasRun() {
		return true
	}
	return now.Sub(state.LastRun) >= interval
}
