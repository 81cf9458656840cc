package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scrapml/config"
)

// Store is a source of raw scrap price rows.
type Store interface {
	Name() string
	FetchRows(ctx context.Context) ([]RawRow, error)
}

// NewStore builds the store selected by dataset.driver.
func NewStore(cfg config.DatasetConfig, logger *zap.SugaredLogger) (Store, error) {
	switch cfg.Driver {
	case "", "postgrest":
		return NewPostgRESTStore(cfg, logger), nil
	case "postgres":
		return NewPostgresStore(cfg, logger), nil
	case "mock":
		return NewMockStore(), nil
	default:
		return nil, fmt.Errorf("unknown dataset driver %q", cfg.Driver)
	}
}
