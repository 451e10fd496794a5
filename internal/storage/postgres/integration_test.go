//go:build integration

package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"news_scanner/internal/domain"
	"news_scanner/internal/storage/seen"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_seen_urls.up.sql"),
			filepath.Join(migrationsPath, "002_create_source_runs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM seen_urls")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM source_runs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestSeenURLStore_LoadEmpty() {
	store := NewSeenURLStore(s.db)

	urls, err := store.Load(s.ctx)
	s.NoError(err)
	s.Empty(urls)
}

func (s *PostgresIntegrationSuite) TestSeenURLStore_SaveIsIdempotent() {
	store := NewSeenURLStore(s.db)

	s.NoError(store.Save(s.ctx, []string{"u1", "u2"}))
	s.NoError(store.Save(s.ctx, []string{"u1", "u2", "u3"}))

	urls, err := store.Load(s.ctx)
	s.NoError(err)
	s.ElementsMatch([]string{"u1", "u2", "u3"}, urls)
}

func (s *PostgresIntegrationSuite) TestSeenURLStore_NeverDeletes() {
	store := NewSeenURLStore(s.db)

	s.NoError(store.Save(s.ctx, []string{"u1", "u2"}))
	s.NoError(store.Save(s.ctx, []string{"u3"}))

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM seen_urls"))
	s.Equal(3, count)
}

func (s *PostgresIntegrationSuite) TestSeenURLStore_AsSeenBackend() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := seen.Open(s.ctx, NewSeenURLStore(s.db), logger)
	store.MarkSeen("https://a.com/1")
	store.MarkSeen("https://b.org/2")
	s.NoError(store.Save(s.ctx))

	reloaded := seen.Open(s.ctx, NewSeenURLStore(s.db), logger)
	s.Equal([]string{"https://a.com/1", "https://b.org/2"}, reloaded.URLs())
}

func (s *PostgresIntegrationSuite) TestSourceRunStore_GetMissing() {
	store := NewSourceRunStore(s.db)

	run, err := store.Get(s.ctx, "source-0")
	s.NoError(err)
	s.Nil(run)
}

func (s *PostgresIntegrationSuite) TestSourceRunStore_RecordAccumulates() {
	store := NewSourceRunStore(s.db)
	src := domain.Source{Name: "source-0", Query: "Q"}
	now := time.Now().Truncate(time.Microsecond)

	s.NoError(store.RecordRun(s.ctx, src, domain.SourceStats{Results: 5, New: 2}, now.Add(-time.Hour)))
	s.NoError(store.RecordRun(s.ctx, src, domain.SourceStats{Results: 3, New: 1}, now))

	run, err := store.Get(s.ctx, "source-0")
	s.NoError(err)
	s.Require().NotNil(run)
	s.Equal("Q", run.Query)
	s.Equal(int64(8), run.TotalResults)
	s.Equal(int64(3), run.TotalNew)
	s.False(run.LastError.Valid)
	s.WithinDuration(now, run.LastRunAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestSourceRunStore_RecordError() {
	store := NewSourceRunStore(s.db)
	src := domain.Source{Name: "source-1", Query: "Q"}

	err := store.RecordRun(s.ctx, src, domain.SourceStats{Err: errors.New("perplexity search: api error 500")}, time.Now())
	s.NoError(err)

	run, err := store.Get(s.ctx, "source-1")
	s.NoError(err)
	s.Require().NotNil(run)
	s.True(run.LastError.Valid)
	s.Contains(run.LastError.String, "api error 500")
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "INSERT INTO seen_urls (url) VALUES ($1)", "u1")
		s.NoError(err)
		return errors.New("abort")
	})
	s.Error(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM seen_urls"))
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		s.NotNil(GetTxFromContext(ctx))
		_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "INSERT INTO seen_urls (url) VALUES ($1)", "u1")
		return err
	})
	s.NoError(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM seen_urls"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_NestedReusesOuter() {
	tm := NewTransactionManager(s.db)
	store := NewSeenURLStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		outer := GetTxFromContext(ctx)
		s.NoError(store.Save(ctx, []string{"u1"}))

		return tm.WithTransaction(ctx, func(inner context.Context) error {
			s.Same(outer, GetTxFromContext(inner))
			return errors.New("abort")
		})
	})
	s.Error(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM seen_urls"))
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestSeenURLStore_SaveInBatches() {
	store := NewSeenURLStore(s.db)
	store.batchSize = 2

	urls := []string{"u1", "u2", "u3", "u4", "u5"}
	s.NoError(store.Save(s.ctx, urls))

	loaded, err := store.Load(s.ctx)
	s.NoError(err)
	s.ElementsMatch(urls, loaded)
}

func (s *PostgresIntegrationSuite) TestSeenURLStore_FailedBatchRollsBackAll() {
	store := NewSeenURLStore(s.db)
	store.batchSize = 2

	// NUL bytes are rejected by Postgres text columns, failing the last batch.
	err := store.Save(s.ctx, []string{"u1", "u2", "u3", "bad\x00url"})
	s.Error(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM seen_urls"))
	s.Equal(0, count)
}
