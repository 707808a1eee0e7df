//go:build integration

// Package containers starts throwaway backing services for integration
// tests. Every helper registers its own cleanup.
package containers

import (
	"context"
	"testing"

	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

// NewPostgres starts Postgres, applies the schema and returns the pool
// wrapper.
func NewPostgres(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("brokerguard"),
		tcpostgres.WithUsername("brokerguard"),
		tcpostgres.WithPassword("brokerguard"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	database, err := db.New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(database.Close)

	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return database
}
