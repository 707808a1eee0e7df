package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/lalith-99/brokerguard/internal/models"
)

// DirectoryStore reads the host application's users and listings.
type DirectoryStore struct {
	pool *pgxpool.Pool
}

func NewDirectoryStore(pool *pgxpool.Pool) *DirectoryStore {
	return &DirectoryStore{pool: pool}
}

// GetMember looks a user up by id across all tenants. The caller compares
// TenantID; filtering here would turn a cross-tenant lookup into a silent
// "not found" instead of a logged mismatch.
func (s *DirectoryStore) GetMember(ctx context.Context, userID int64) (*models.Member, error) {
	query := `
		SELECT id, tenant_id, display_name, created_at
		FROM users
		WHERE id = $1`

	var m models.Member
	err := db.Conn(ctx, s.pool).QueryRow(ctx, query, userID).Scan(
		&m.ID,
		&m.TenantID,
		&m.DisplayName,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *DirectoryStore) GetListing(ctx context.Context, listingID int64) (*models.Listing, error) {
	query := `
		SELECT id, tenant_id, user_id, title
		FROM listings
		WHERE id = $1`

	var l models.Listing
	err := db.Conn(ctx, s.pool).QueryRow(ctx, query, listingID).Scan(
		&l.ID,
		&l.TenantID,
		&l.OwnerID,
		&l.Title,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}
