package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"scrapml/config"
)

// PostgresStore reads the scrap price table straight from Postgres, for
// deployments with direct database access instead of the REST surface.
type PostgresStore struct {
	dsn     string
	table   string
	timeout time.Duration
	logger  *zap.SugaredLogger

	once    sync.Once
	pool    *pgxpool.Pool
	poolErr error
}

func NewPostgresStore(cfg config.DatasetConfig, logger *zap.SugaredLogger) *PostgresStore {
	return &PostgresStore{
		dsn:     cfg.DSN,
		table:   cfg.Table,
		timeout: cfg.Timeout(),
		logger:  logger,
	}
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

func (s *PostgresStore) FetchRows(ctx context.Context) ([]RawRow, error) {
	if s.dsn == "" {
		return nil, ErrMissingCredentials
	}

	s.once.Do(func() {
		s.pool, s.poolErr = pgxpool.New(context.Background(), s.dsn)
	})
	if s.poolErr != nil {
		return nil, fmt.Errorf("open pool: %w", s.poolErr)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// base_price casts to text so numeric, real and text columns all arrive
	// as strings and share the cleaning path with the REST store.
	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s::text FROM %s",
		ColScrapType, ColSubCategory, ColSubSubCategory, ColBasePrice, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var scrap, sub, leaf, price *string
		if err := rows.Scan(&scrap, &sub, &leaf, &price); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		row := RawRow{ScrapType: scrap, SubCategory: sub, SubSubCategory: leaf}
		if price != nil {
			row.BasePrice = json.RawMessage(*price)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	return out, nil
}
