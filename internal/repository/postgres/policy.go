package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/lalith-99/brokerguard/internal/policy"
)

// PolicyStore keeps one JSONB broker configuration per tenant.
type PolicyStore struct {
	pool *pgxpool.Pool
}

func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

func (s *PolicyStore) Get(ctx context.Context, tenantID int64) (*policy.Config, error) {
	var raw []byte
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT config FROM broker_configs WHERE tenant_id = $1`, tenantID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get broker config: %w", err)
	}

	// Start from defaults so keys added after the row was written get a value.
	cfg := policy.Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode broker config: %w", err)
	}
	return &cfg, nil
}

func (s *PolicyStore) Put(ctx context.Context, tenantID int64, cfg policy.Config, updatedBy int64) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode broker config: %w", err)
	}

	query := `
		INSERT INTO broker_configs (tenant_id, config, updated_by, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET config = EXCLUDED.config, updated_by = EXCLUDED.updated_by, updated_at = now()`

	if _, err := db.Conn(ctx, s.pool).Exec(ctx, query, tenantID, raw, updatedBy); err != nil {
		return fmt.Errorf("put broker config: %w", err)
	}
	return nil
}
