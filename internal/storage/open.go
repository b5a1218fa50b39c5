package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feedwatch/internal/domain"
	logx "feedwatch/pkg/logx"
)

// Store is the delivery log API.
type Store interface {
	AppendDelivery(ctx context.Context, d Delivery) error
	// ListDeliveries returns up to limit records, newest first.
	ListDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	// PruneDeliveries removes records older than before and reports how many.
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q: %w", driver, domain.ErrConfiguration)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 10000)
}
