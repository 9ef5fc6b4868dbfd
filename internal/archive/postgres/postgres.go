// Package postgres implements the remote durable archive sink on
// PostgreSQL. The relational schema mirrors the hot store's tables.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool so the sink and its tests share one handle type.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to the durable mirror. The connection is verified with a
// ping before the pool is handed out: the sink would otherwise only learn
// about a bad DSN on its first sync pass.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close releases the pool's connections.
func (p *Pool) Close() {
	p.Pool.Close()
}
