package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultSaveBatchSize = 1000

// SeenURLStore is a seen.Backend persisting URLs in the seen_urls table.
// Rows are only ever inserted.
type SeenURLStore struct {
	db        *sqlx.DB
	tx        *TransactionManager
	batchSize int
}

func NewSeenURLStore(db *sqlx.DB) *SeenURLStore {
	return &SeenURLStore{
		db:        db,
		tx:        NewTransactionManager(db),
		batchSize: defaultSaveBatchSize,
	}
}

func (s *SeenURLStore) Load(ctx context.Context) ([]string, error) {
	var urls []string
	err := s.db.SelectContext(ctx, &urls, `SELECT url FROM seen_urls`)
	return urls, err
}

// Save inserts urls in batches of batchSize. All batches commit together,
// so a failed save leaves the table as it was.
func (s *SeenURLStore) Save(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	query := `
		INSERT INTO seen_urls (url)
		SELECT unnest($1::text[])
		ON CONFLICT (url) DO NOTHING`

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		for start := 0; start < len(urls); start += s.batchSize {
			end := min(start+s.batchSize, len(urls))
			if _, err := exec.ExecContext(txCtx, query, pq.Array(urls[start:end])); err != nil {
				return fmt.Errorf("insert seen urls %d..%d: %w", start, end, err)
			}
		}
		return nil
	})
}
