// Package seen keeps the set of item URLs that have already been delivered.
//
// The set only grows: there is no removal and no expiry. Persistence is
// delegated to a Backend which always receives the whole set.
package seen

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Backend persists the seen set.
type Backend interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, urls []string) error
}

// Store is the in-memory seen set backed by a Backend.
type Store struct {
	mu      sync.RWMutex
	urls    map[string]struct{}
	backend Backend
	logger  *slog.Logger
}

// Open loads the seen set from backend. Any load error yields an empty
// store; startup never fails because of the state file.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) *Store {
	s := &Store{
		urls:    make(map[string]struct{}),
		backend: backend,
		logger:  logger.With("component", "seen_store"),
	}

	urls, err := backend.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load seen urls, starting empty", "error", err)
		return s
	}

	for _, u := range urls {
		s.urls[u] = struct{}{}
	}
	s.logger.Info("loaded seen urls", "count", len(s.urls))
	return s
}

// IsNew reports whether url has not been seen yet.
func (s *Store) IsNew(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return !ok
}

// MarkSeen adds url to the set. Marking twice is a no-op.
func (s *Store) MarkSeen(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[url] = struct{}{}
}

// Len returns the number of seen URLs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}

// URLs returns the seen URLs in sorted order.
func (s *Store) URLs() []string {
	s.mu.RLock()
	urls := make([]string, 0, len(s.urls))
	for u := range s.urls {
		urls = append(urls, u)
	}
	s.mu.RUnlock()

	slices.Sort(urls)
	return urls
}

// Save writes the full set through the backend. The in-memory set stays
// authoritative when saving fails.
func (s *Store) Save(ctx context.Context) error {
	return s.backend.Save(ctx, s.URLs())
}
