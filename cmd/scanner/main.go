// Command scanner polls Perplexity for news on configured topics and
// forwards unseen items to Slack and, optionally, RabbitMQ.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"news_scanner/internal/config"
	"news_scanner/internal/domain"
	"news_scanner/internal/metrics"
	"news_scanner/internal/perplexity"
	"news_scanner/internal/publisher"
	"news_scanner/internal/scheduler"
	"news_scanner/internal/service"
	"news_scanner/internal/slack"
	"news_scanner/internal/storage/postgres"
	"news_scanner/internal/storage/seen"
)

var version = "dev"

const askTimeout = 2 * time.Minute

func main() {
	logger := setupLogger("info")

	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "scanner",
		Short:         "Poll Perplexity for news and forward new items to Slack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (default: $CONFIG or config.json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scan loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, logger, configFlag, false)
		},
	}

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single scan pass over all sources and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, logger, configFlag, true)
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask Perplexity chat completions and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd.Context(), cmd, logger, strings.Join(args, " "))
		},
	}

	pingCmd := &cobra.Command{
		Use:   "ping-slack [text]",
		Short: "Send a test message to the default Slack channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := "Test message from news_scanner"
			if len(args) > 0 {
				text = strings.Join(args, " ")
			}
			return pingSlack(cmd.Context(), logger, configFlag, text)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(runCmd, onceCmd, askCmd, pingCmd, versionCmd)
	rootCmd.RunE = runCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		logger.Error("scanner failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configFlag string, once bool) error {
	configPath := config.Path(configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger = setupLogger(cfg.LogLevel)

	env := config.LoadEnv()

	var reporter service.Reporter
	if env.SlackBotToken != "" {
		slackClient := slack.New(slack.Config{Token: env.SlackBotToken, Timeout: cfg.HTTPTimeout()}, logger)
		reporter = slackClient
		if !once {
			sendStartupMessage(ctx, logger, slackClient, env.StartupChannel())
		}
	} else {
		logger.Info("SLACK_BOT_TOKEN not set, channel summaries disabled")
	}

	if env.PerplexityAPIKey == "" {
		logger.Info("PERPLEXITY_API_KEY not set, nothing to do")
		return nil
	}

	searcher := perplexity.New(perplexity.Config{
		APIKey:  env.PerplexityAPIKey,
		Timeout: cfg.HTTPTimeout(),
	}, logger)

	sources := cfg.ScanSources()

	var (
		backend  seen.Backend
		recorder service.RunRecorder
	)
	switch cfg.StateBackend {
	case config.BackendPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

		runs := postgres.NewSourceRunStore(db)
		logPreviousRuns(ctx, logger, runs, sources)

		backend = postgres.NewSeenURLStore(db)
		recorder = runs
	default:
		file := seen.NewFile(cfg.StateFile)
		logger.Info("using state file", "path", file.Path())
		backend = file
	}
	seenStore := seen.Open(ctx, backend, logger)

	var feed service.Feed
	webhook := slack.NewWebhook(cfg.SlackWebhookURL, cfg.HTTPTimeout(), logger)
	if webhook.Enabled() {
		feed = webhook
	} else if cfg.SlackWebhookURL == slack.PlaceholderWebhookURL {
		logger.Warn("slack_webhook_url is the placeholder value, webhook feed disabled")
	}

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	poller := service.NewPoller(
		sources,
		searcher,
		seenStore,
		reporter,
		feed,
		pub,
		recorder,
		logger,
		cfg.Scan(env),
	)

	sched := scheduler.NewScheduler(poller, cfg.BaseTick(), cfg.PassTimeout(), logger)

	if once {
		stats := sched.RunOnce(ctx)
		if stats != nil && stats.Failed > 0 {
			return fmt.Errorf("%d of %d sources failed", stats.Failed, stats.Due)
		}
		return nil
	}

	logger.Info("starting news scanner",
		"sources", len(sources),
		"base_tick", cfg.BaseTick(),
		"state_backend", cfg.StateBackend,
		"webhook", feed != nil,
		"rabbitmq", pub != nil,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

// logPreviousRuns reports what the audit table holds for each source.
// It is informational only; every source is still due on the first pass.
func logPreviousRuns(ctx context.Context, logger *slog.Logger, runs *postgres.SourceRunStore, sources []domain.Source) {
	for _, src := range sources {
		run, err := runs.Get(ctx, src.Name)
		if err != nil {
			logger.Warn("failed to read previous run", "source", src.Name, "error", err)
			continue
		}
		if run == nil {
			continue
		}
		logger.Info("previous run",
			"source", run.SourceName,
			"last_run_at", run.LastRunAt,
			"last_error", run.LastError.String,
			"total_results", run.TotalResults,
			"total_new", run.TotalNew,
		)
	}
}

func sendStartupMessage(ctx context.Context, logger *slog.Logger, client *slack.Client, channel string) {
	channel = slack.NormalizeChannel(channel)
	if err := client.PostMessage(ctx, channel, "news_scanner started"); err != nil {
		logger.Error("slack startup message failed", "channel", channel, "error", err)
		return
	}
	logger.Info("startup message sent to slack", "channel", channel)
}

func ask(ctx context.Context, cmd *cobra.Command, logger *slog.Logger, prompt string) error {
	env := config.LoadEnv()
	if env.PerplexityAPIKey == "" {
		return errors.New("PERPLEXITY_API_KEY is not set")
	}

	client := perplexity.New(perplexity.Config{APIKey: env.PerplexityAPIKey, Timeout: askTimeout}, logger)
	answer, err := client.Complete(ctx, prompt)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func pingSlack(ctx context.Context, logger *slog.Logger, configFlag, text string) error {
	cfg, err := config.Load(config.Path(configFlag))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := config.LoadEnv()
	if env.SlackBotToken == "" {
		return errors.New("SLACK_BOT_TOKEN is not set")
	}

	client := slack.New(slack.Config{Token: env.SlackBotToken, Timeout: cfg.HTTPTimeout()}, logger)
	channel := slack.NormalizeChannel(cfg.DefaultChannel(env))
	if err := client.PostMessage(ctx, channel, text); err != nil {
		return err
	}

	logger.Info("test message sent", "channel", channel)
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
