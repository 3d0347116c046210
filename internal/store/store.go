package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kalshi-trader/internal/config"
)

// Store wraps the Postgres pool holding trader state.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: pool, logger: logger.With("component", "store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// Ping verifies the connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS settings_versions (
		version     BIGINT PRIMARY KEY,
		payload     JSONB NOT NULL,
		applied_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		event_id        TEXT NOT NULL,
		side            TEXT NOT NULL,
		quantity        INTEGER NOT NULL,
		avg_entry_price NUMERIC(12,6) NOT NULL,
		realized_pnl    NUMERIC(14,6) NOT NULL,
		cluster_id      TEXT NOT NULL DEFAULT '',
		opened_at       TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (event_id, side)
	)`,
	`CREATE TABLE IF NOT EXISTS closed_trades (
		id              BIGSERIAL PRIMARY KEY,
		event_id        TEXT NOT NULL,
		side            TEXT NOT NULL,
		quantity        INTEGER NOT NULL,
		avg_entry_price NUMERIC(12,6) NOT NULL,
		avg_exit_price  NUMERIC(12,6) NOT NULL,
		realized_pnl    NUMERIC(14,6) NOT NULL,
		opened_at       TIMESTAMPTZ NOT NULL,
		closed_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS closed_trades_closed_at_idx
		ON closed_trades (closed_at)`,
	`CREATE TABLE IF NOT EXISTS risk_journal (
		id          BIGSERIAL PRIMARY KEY,
		request_id  TEXT NOT NULL DEFAULT '',
		event_id    TEXT NOT NULL,
		side        TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		reason      TEXT NOT NULL,
		edge        DOUBLE PRECISION NOT NULL,
		quantity    INTEGER NOT NULL,
		limit_price INTEGER NOT NULL,
		decided_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS risk_journal_decided_at_idx
		ON risk_journal (decided_at)`,
}

// EnsureSchema creates the trader's tables when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Info("database schema ensured")
	return nil
}
