package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is IF NOT EXISTS, so running
// it on every start is safe.
func (db *DB) Migrate(ctx context.Context) error {
	// No arguments: pgx sends this over the simple protocol, which accepts
	// multiple statements in one string.
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.logger.Info("schema applied")
	return nil
}
