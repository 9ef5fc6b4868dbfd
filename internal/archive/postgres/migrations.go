package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

// schemaSQL is the durable-mirror DDL. It is idempotent: every statement
// guards with IF NOT EXISTS.
//
//go:embed schema.sql
var schemaSQL string

// RunMigrations applies the durable-mirror schema.
func RunMigrations(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}
