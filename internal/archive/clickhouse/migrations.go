package clickhouse

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

// schemaSQL is the analytical-mirror DDL. Statements are separated by
// semicolons; ClickHouse executes one statement per call.
//
//go:embed schema.sql
var schemaSQL string

// RunMigrations applies the analytical-mirror schema.
func RunMigrations(ctx context.Context, conn *Conn) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply clickhouse schema: %w", err)
		}
	}
	return nil
}
