package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedwatch/internal/domain"
	logx "feedwatch/pkg/logx"
)

//go:embed migrations/postgres/*.sql
var pgMigrations embed.FS

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("storage.dsn is required for postgres driver: %w", domain.ErrConfiguration)
	}
	if err := migratePostgres(dsn, log); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse storage.dsn: %v: %w", err, domain.ErrConfiguration)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &pgStore{pool: pool, log: log}, nil
}

// migratePostgres applies the embedded up-migrations. Already-applied
// versions are skipped.
func migratePostgres(dsn string, log logx.Logger) error {
	src, err := iofs.New(pgMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	if v, dirty, err := m.Version(); err == nil {
		log.Debug("postgres schema ready", logx.Int64("version", int64(v)), logx.Bool("dirty", dirty))
	}
	return nil
}

// migrateURL rewrites postgres:// and postgresql:// to the pgx5:// scheme
// golang-migrate's pgx/v5 driver registers.
func migrateURL(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgresql://"):
		return "pgx5://" + dsn[len("postgresql://"):]
	case strings.HasPrefix(dsn, "postgres://"):
		return "pgx5://" + dsn[len("postgres://"):]
	default:
		return dsn
	}
}

func (s *pgStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *pgStore) AppendDelivery(ctx context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (id, at, transport, target, subject, items, first_id, last_id, err, took_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.At, d.Transport, d.Target, nullStr(d.Subject), d.Items,
		nullStr(d.FirstID), nullStr(d.LastID), nullStr(d.Error), d.TookMS,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *pgStore) ListDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, at, transport, target, COALESCE(subject, ''), items,
		       COALESCE(first_id, ''), COALESCE(last_id, ''), COALESCE(err, ''), took_ms
		FROM deliveries ORDER BY at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.At, &d.Transport, &d.Target, &d.Subject, &d.Items, &d.FirstID, &d.LastID, &d.Error, &d.TookMS); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgStore) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}
