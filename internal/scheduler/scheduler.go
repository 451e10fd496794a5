package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"news_scanner/internal/domain"
)

// Passer defines the interface for scan passes.
type Passer interface {
	RunPass(ctx context.Context) *domain.PassStats
}

// Scheduler runs a scan pass on a fixed base tick, starting immediately.
// Passes never overlap: a pass that outlasts the tick delays the next one.
type Scheduler struct {
	passer      Passer
	interval    time.Duration
	passTimeout time.Duration
	logger      *slog.Logger
}

func NewScheduler(passer Passer, interval, passTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		passer:      passer,
		interval:    interval,
		passTimeout: passTimeout,
		logger:      logger.With("component", "scheduler"),
	}
}

// Start blocks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.runPass(ctx) }),
		gocron.WithName("scan-pass"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("create scan job: %w", err)
	}

	cron.Start()
	s.logger.Info("scheduler started", "interval", s.interval, "pass_timeout", s.passTimeout)

	<-ctx.Done()

	if err := cron.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown", "error", err)
	}
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// RunOnce runs a single pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) *domain.PassStats {
	return s.runPass(ctx)
}

func (s *Scheduler) runPass(ctx context.Context) *domain.PassStats {
	if ctx.Err() != nil {
		return nil
	}

	passCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	return s.passer.RunPass(passCtx)
}
