package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/lalith-99/brokerguard/internal/models"
)

// ContactStore tracks which member pairs have talked and each member's
// monitoring flags.
type ContactStore struct {
	pool *pgxpool.Pool
}

func NewContactStore(pool *pgxpool.Pool) *ContactStore {
	return &ContactStore{pool: pool}
}

// MarkPair inserts the pair row. ON CONFLICT DO NOTHING makes the primary
// key the arbiter: only the inserting transaction gets a row back.
func (s *ContactStore) MarkPair(ctx context.Context, tenantID int64, pair models.UserPair, messageID int64) (bool, error) {
	query := `
		INSERT INTO user_first_contacts (tenant_id, user_a, user_b, first_message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_a, user_b) DO NOTHING
		RETURNING true`

	var created bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx, query, tenantID, pair.Low, pair.High, messageID).Scan(&created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("mark contact pair: %w", err)
	}
	return created, nil
}

func (s *ContactStore) HasHistory(ctx context.Context, tenantID int64, pair models.UserPair) (bool, error) {
	var exists bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_first_contacts WHERE tenant_id = $1 AND user_a = $2 AND user_b = $3)`,
		tenantID, pair.Low, pair.High,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check contact history: %w", err)
	}
	return exists, nil
}

const monitoringColumns = `m.tenant_id, m.user_id, m.joined_at, m.under_monitoring, m.messaging_disabled,
	m.monitoring_reason, m.monitoring_set_by, m.monitoring_set_at`

func scanMonitoring(row pgx.Row, m *models.UserMonitoring, extra ...any) error {
	dest := []any{
		&m.TenantID,
		&m.UserID,
		&m.JoinedAt,
		&m.UnderMonitoring,
		&m.MessagingDisabled,
		&m.MonitoringReason,
		&m.MonitoringSetBy,
		&m.MonitoringSetAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// EnsureMonitoring creates the record if missing and returns the stored row.
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
func (s *ContactStore) EnsureMonitoring(ctx context.Context, tenantID, userID int64, joinedAt time.Time) (*models.UserMonitoring, error) {
	query := `
		INSERT INTO user_monitoring AS m (tenant_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET joined_at = m.joined_at
		RETURNING ` + monitoringColumns

	var m models.UserMonitoring
	if err := scanMonitoring(db.Conn(ctx, s.pool).QueryRow(ctx, query, tenantID, userID, joinedAt), &m); err != nil {
		return nil, fmt.Errorf("ensure monitoring: %w", err)
	}
	return &m, nil
}

func (s *ContactStore) GetMonitoring(ctx context.Context, tenantID, userID int64) (*models.UserMonitoring, error) {
	query := `SELECT ` + monitoringColumns + `
		FROM user_monitoring m
		WHERE m.tenant_id = $1 AND m.user_id = $2`

	var m models.UserMonitoring
	if err := scanMonitoring(db.Conn(ctx, s.pool).QueryRow(ctx, query, tenantID, userID), &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get monitoring: %w", err)
	}
	return &m, nil
}

func (s *ContactStore) SetMonitoring(ctx context.Context, rec *models.UserMonitoring) (*models.UserMonitoring, error) {
	query := `
		UPDATE user_monitoring AS m
		SET under_monitoring = $3,
			messaging_disabled = $4,
			monitoring_reason = $5,
			monitoring_set_by = $6,
			monitoring_set_at = $7
		WHERE m.tenant_id = $1 AND m.user_id = $2
		RETURNING ` + monitoringColumns

	var m models.UserMonitoring
	err := scanMonitoring(db.Conn(ctx, s.pool).QueryRow(ctx, query,
		rec.TenantID, rec.UserID, rec.UnderMonitoring, rec.MessagingDisabled,
		rec.MonitoringReason, rec.MonitoringSetBy, rec.MonitoringSetAt,
	), &m)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set monitoring: %w", err)
	}
	return &m, nil
}

func monitoringFilterSQL(f models.MonitoringFilter) string {
	switch f {
	case models.MonitoringFilterRestricted:
		return ` AND m.messaging_disabled`
	case models.MonitoringFilterMonitored:
		return ` AND m.under_monitoring`
	case models.MonitoringFilterFlagged:
		return ` AND lower(btrim(m.monitoring_reason)) LIKE '` + models.FlaggedReasonPrefix + `%'`
	default:
		return ``
	}
}

func (s *ContactStore) ListMonitoring(ctx context.Context, tenantID int64, filter models.MonitoringFilter, p models.Pagination) ([]models.MonitoringView, int, error) {
	where := `WHERE m.tenant_id = $1` + monitoringFilterSQL(filter)
	conn := db.Conn(ctx, s.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM user_monitoring m `+where, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count monitoring: %w", err)
	}

	query := `SELECT ` + monitoringColumns + `, COALESCE(u.display_name, ''),
			(SELECT COUNT(*) FROM user_first_contacts c
			 WHERE c.tenant_id = m.tenant_id AND (c.user_a = m.user_id OR c.user_b = m.user_id))
		FROM user_monitoring m
		LEFT JOIN users u ON u.id = m.user_id
		` + where + `
		ORDER BY m.monitoring_set_at DESC NULLS LAST, m.user_id
		LIMIT $2 OFFSET $3`

	rows, err := conn.Query(ctx, query, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list monitoring: %w", err)
	}
	defer rows.Close()

	out := make([]models.MonitoringView, 0)
	for rows.Next() {
		var v models.MonitoringView
		if err := scanMonitoring(rows, &v.UserMonitoring, &v.DisplayName, &v.FirstContactCount); err != nil {
			return nil, 0, fmt.Errorf("scan monitoring: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate monitoring: %w", err)
	}
	return out, total, nil
}

func (s *ContactStore) CountMonitored(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM user_monitoring WHERE tenant_id = $1 AND under_monitoring`,
		tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count monitored: %w", err)
	}
	return n, nil
}
