package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/config"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.Path, logger)
	case "mongo":
		return NewMongo(ctx, cfg.URI, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
