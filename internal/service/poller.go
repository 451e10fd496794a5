package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"news_scanner/internal/config"
	"news_scanner/internal/domain"
	"news_scanner/internal/metrics"
)

// Poller runs scan passes over the configured sources. It owns the per-source
// run state; sources are processed one after another within a pass.
type Poller struct {
	sources   []domain.Source
	runs      []domain.RunState
	searcher  Searcher
	seen      SeenStore
	reporter  Reporter
	feed      Feed
	publisher Publisher
	recorder  RunRecorder
	logger    *slog.Logger
	config    config.ScanConfig
	now       func() time.Time
}

// NewPoller creates a Poller. reporter, feed, publisher and recorder may be nil.
func NewPoller(
	sources []domain.Source,
	searcher Searcher,
	seen SeenStore,
	reporter Reporter,
	feed Feed,
	publisher Publisher,
	recorder RunRecorder,
	logger *slog.Logger,
	cfg config.ScanConfig,
) *Poller {
	return &Poller{
		sources:   sources,
		runs:      make([]domain.RunState, len(sources)),
		searcher:  searcher,
		seen:      seen,
		reporter:  reporter,
		feed:      feed,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger.With("component", "poller"),
		config:    cfg,
		now:       time.Now,
	}
}

// RunState returns the run state of the i-th source.
func (p *Poller) RunState(i int) domain.RunState {
	return p.runs[i]
}

// RunPass polls every due source once, then saves the seen store if any
// source was due.
func (p *Poller) RunPass(ctx context.Context) *domain.PassStats {
	start := p.now()
	stats := &domain.PassStats{ID: uuid.NewString()}
	logger := p.logger.With("pass_id", stats.ID)

	for i, src := range p.sources {
		if ctx.Err() != nil {
			logger.Warn("pass interrupted", "error", ctx.Err(), "remaining", len(p.sources)-i)
			break
		}

		if !domain.IsDue(p.runs[i], src.Interval, start) {
			stats.Skipped++
			continue
		}
		stats.Due++

		srcStats := p.pollSource(ctx, logger, i, src)
		if srcStats.Err != nil {
			stats.Failed++
		}
		stats.New += srcStats.New
		stats.Sources = append(stats.Sources, srcStats)
	}

	if stats.Due > 0 {
		err := p.seen.Save(ctx)
		metrics.StateSavesTotal.WithLabelValues(metrics.Status(err)).Inc()
		if err != nil {
			logger.Error("failed to save seen urls", "error", err)
		} else {
			stats.Saved = true
		}
	}
	metrics.SeenURLs.Set(float64(p.seen.Len()))

	stats.Duration = p.now().Sub(start)
	metrics.PassDuration.Observe(stats.Duration.Seconds())

	if stats.Due > 0 {
		logger.Info("pass completed",
			"due", stats.Due,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"new", stats.New,
			"seen_total", p.seen.Len(),
			"duration", stats.Duration,
		)
	} else {
		logger.Debug("no sources due", "skipped", stats.Skipped)
	}

	return stats
}

func (p *Poller) pollSource(ctx context.Context, logger *slog.Logger, i int, src domain.Source) domain.SourceStats {
	started := p.now()
	logger = logger.With("source", src.Name, "query", src.Query)
	stats := domain.SourceStats{Source: src.Name}

	q := src.BuildQuery(p.config.MaxResults, p.config.RecencyFilter)
	channel := config.Resolve(src.Channel, p.config.DefaultChannel)

	results, err := p.searcher.Search(ctx, q)
	metrics.SearchesTotal.WithLabelValues(src.Name, metrics.Status(err)).Inc()
	if err != nil {
		stats.Err = err
		stats.Duration = p.now().Sub(started)
		logger.Error("search failed", "error", err, "domains", q.Domains)
		p.record(ctx, logger, src, stats)
		return stats
	}

	p.runs[i] = domain.RunState{LastRun: p.now()}
	stats.Results = len(results)

	if len(results) == 0 {
		logger.Info("search returned no results, consider broadening the query or sites", "domains", q.Domains)
	} else {
		p.report(ctx, logger, channel, src, results, &stats)
	}

	for _, r := range results {
		if p.seen.IsNew(r.URL) {
			stats.New++
			metrics.ItemsTotal.WithLabelValues("new").Inc()
			logger.Info("new item", "title", r.Title, "url", r.URL)
			p.deliver(ctx, logger, src, r, &stats)
		} else {
			stats.Seen++
			metrics.ItemsTotal.WithLabelValues("seen").Inc()
		}
		p.seen.MarkSeen(r.URL)
	}

	stats.Duration = p.now().Sub(started)
	logger.Info("source polled",
		"results", stats.Results,
		"new", stats.New,
		"seen", stats.Seen,
		"delivery_errors", stats.DeliveryErrors,
		"duration", stats.Duration,
	)

	p.record(ctx, logger, src, stats)
	return stats
}

func (p *Poller) report(ctx context.Context, logger *slog.Logger, channel string, src domain.Source, results []domain.SearchResult, stats *domain.SourceStats) {
	if p.reporter == nil {
		return
	}

	err := p.reporter.PostSummary(ctx, channel, src.Query, results)
	metrics.DeliveriesTotal.WithLabelValues("summary", metrics.Status(err)).Inc()
	if err != nil {
		stats.DeliveryErrors++
		logger.Warn("failed to post summary", "channel", channel, "error", err)
		return
	}
	logger.Debug("summary posted", "channel", channel, "results", len(results))
}

func (p *Poller) deliver(ctx context.Context, logger *slog.Logger, src domain.Source, r domain.SearchResult, stats *domain.SourceStats) {
	if p.feed != nil {
		err := p.feed.PostNews(ctx, r)
		metrics.DeliveriesTotal.WithLabelValues("webhook", metrics.Status(err)).Inc()
		if err != nil {
			stats.DeliveryErrors++
			logger.Warn("failed to post to webhook", "url", r.URL, "error", err)
		}
	}

	if p.publisher != nil {
		item := &domain.NewsItem{
			Source:  src.Name,
			Query:   src.Query,
			Result:  r,
			FoundAt: p.now(),
		}
		err := p.publisher.Publish(ctx, item)
		metrics.DeliveriesTotal.WithLabelValues("rabbitmq", metrics.Status(err)).Inc()
		if err != nil {
			stats.DeliveryErrors++
			logger.Warn("failed to publish item", "url", r.URL, "error", err)
		}
	}
}

func (p *Poller) record(ctx context.Context, logger *slog.Logger, src domain.Source, stats domain.SourceStats) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRun(ctx, src, stats, p.now()); err != nil {
		logger.Warn("failed to record source run", "error", err)
	}
}
