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

type RiskTagStore struct {
	pool *pgxpool.Pool
}

func NewRiskTagStore(pool *pgxpool.Pool) *RiskTagStore {
	return &RiskTagStore{pool: pool}
}

const riskTagColumns = `t.tenant_id, t.listing_id, t.risk_level, t.risk_category, t.risk_notes,
	t.dbs_required, t.insurance_required, t.tagged_by, t.tagged_at`

func scanRiskTag(row pgx.Row, t *models.RiskTag, extra ...any) error {
	dest := []any{
		&t.TenantID,
		&t.ListingID,
		&t.RiskLevel,
		&t.RiskCategory,
		&t.RiskNotes,
		&t.DBSRequired,
		&t.InsuranceRequired,
		&t.TaggedBy,
		&t.TaggedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (s *RiskTagStore) Get(ctx context.Context, tenantID, listingID int64) (*models.RiskTag, error) {
	query := `SELECT ` + riskTagColumns + `
		FROM listing_risk_tags t
		WHERE t.tenant_id = $1 AND t.listing_id = $2`

	var t models.RiskTag
	if err := scanRiskTag(db.Conn(ctx, s.pool).QueryRow(ctx, query, tenantID, listingID), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get risk tag: %w", err)
	}
	return &t, nil
}

// Upsert replaces the listing's tag. A listing carries at most one tag; the
// tenant_id guard stops a tag being moved across tenants by listing id.
func (s *RiskTagStore) Upsert(ctx context.Context, tag *models.RiskTag) (*models.RiskTag, error) {
	query := `
		INSERT INTO listing_risk_tags AS t
			(tenant_id, listing_id, risk_level, risk_category, risk_notes,
			 dbs_required, insurance_required, tagged_by, tagged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (listing_id) DO UPDATE
		SET risk_level = EXCLUDED.risk_level,
			risk_category = EXCLUDED.risk_category,
			risk_notes = EXCLUDED.risk_notes,
			dbs_required = EXCLUDED.dbs_required,
			insurance_required = EXCLUDED.insurance_required,
			tagged_by = EXCLUDED.tagged_by,
			tagged_at = EXCLUDED.tagged_at
		WHERE t.tenant_id = EXCLUDED.tenant_id
		RETURNING ` + riskTagColumns

	var out models.RiskTag
	err := scanRiskTag(db.Conn(ctx, s.pool).QueryRow(ctx, query,
		tag.TenantID, tag.ListingID, tag.RiskLevel, tag.RiskCategory, tag.RiskNotes,
		tag.DBSRequired, tag.InsuranceRequired, tag.TaggedBy, tag.TaggedAt,
	), &out)
	if err != nil {
		// The WHERE on the conflict branch filtered the row out: the listing
		// is tagged by another tenant.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("upsert risk tag: %w", err)
	}
	return &out, nil
}

func (s *RiskTagStore) Delete(ctx context.Context, tenantID, listingID int64) (bool, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`DELETE FROM listing_risk_tags WHERE tenant_id = $1 AND listing_id = $2`,
		tenantID, listingID,
	)
	if err != nil {
		return false, fmt.Errorf("delete risk tag: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RiskTagStore) List(ctx context.Context, tenantID int64, level *models.RiskLevel) ([]models.RiskTagView, error) {
	query := `SELECT ` + riskTagColumns + `, l.title
		FROM listing_risk_tags t
		LEFT JOIN listings l ON l.id = t.listing_id
		WHERE t.tenant_id = $1 AND ($2::text IS NULL OR t.risk_level = $2)
		ORDER BY CASE t.risk_level
			WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
			t.tagged_at DESC`

	var levelArg *string
	if level != nil {
		v := string(*level)
		levelArg = &v
	}

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, tenantID, levelArg)
	if err != nil {
		return nil, fmt.Errorf("list risk tags: %w", err)
	}
	defer rows.Close()

	tags := make([]models.RiskTagView, 0)
	for rows.Next() {
		var v models.RiskTagView
		if err := scanRiskTag(rows, &v.RiskTag, &v.ListingTitle); err != nil {
			return nil, fmt.Errorf("scan risk tag: %w", err)
		}
		tags = append(tags, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk tags: %w", err)
	}
	return tags, nil
}

func (s *RiskTagStore) CountHighRisk(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM listing_risk_tags WHERE tenant_id = $1 AND risk_level IN ('high', 'critical')`,
		tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count high risk tags: %w", err)
	}
	return n, nil
}
