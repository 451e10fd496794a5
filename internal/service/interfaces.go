package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"news_scanner/internal/domain"
)

type Searcher interface {
	Search(ctx context.Context, q domain.Query) ([]domain.SearchResult, error)
}

// Reporter posts the full result list of a search to a channel.
type Reporter interface {
	PostSummary(ctx context.Context, channel, query string, results []domain.SearchResult) error
}

// Feed receives every item that has not been seen before.
type Feed interface {
	PostNews(ctx context.Context, item domain.SearchResult) error
}

type Publisher interface {
	Publish(ctx context.Context, item *domain.NewsItem) error
	Close() error
}

type SeenStore interface {
	IsNew(url string) bool
	MarkSeen(url string)
	Len() int
	Save(ctx context.Context) error
}

type RunRecorder interface {
	RecordRun(ctx context.Context, src domain.Source, stats domain.SourceStats, at time.Time) error
}
