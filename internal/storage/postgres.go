package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS inspect_samples (
	id          BIGSERIAL PRIMARY KEY,
	session_id  UUID        NOT NULL,
	entry_id    TEXT        NOT NULL,
	name        TEXT        NOT NULL,
	bank        TEXT        NOT NULL,
	value       TEXT        NOT NULL,
	sampled_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS inspect_samples_entry_idx
	ON inspect_samples (session_id, entry_id, sampled_at DESC);
`

// EnsureSchema creates the sample table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
