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

// CopyStore persists broker message copies.
type CopyStore struct {
	pool *pgxpool.Pool
}

func NewCopyStore(pool *pgxpool.Pool) *CopyStore {
	return &CopyStore{pool: pool}
}

const copyColumns = `c.id, c.tenant_id, c.message_id, c.sender_id, c.receiver_id, c.message_body,
	c.copy_reason, c.related_listing_id, c.created_at, c.reviewed, c.reviewed_at, c.reviewed_by,
	c.flagged, c.flag_reason`

func scanCopy(row pgx.Row, c *models.MessageCopy, extra ...any) error {
	dest := []any{
		&c.ID,
		&c.TenantID,
		&c.MessageID,
		&c.SenderID,
		&c.ReceiverID,
		&c.MessageBody,
		&c.CopyReason,
		&c.RelatedListingID,
		&c.CreatedAt,
		&c.Reviewed,
		&c.ReviewedAt,
		&c.ReviewedBy,
		&c.Flagged,
		&c.FlagReason,
	}
	return row.Scan(append(dest, extra...)...)
}

func (s *CopyStore) Create(ctx context.Context, c *models.MessageCopy) (*models.MessageCopy, error) {
	query := `
		INSERT INTO broker_message_copies AS c
			(tenant_id, message_id, sender_id, receiver_id, message_body, copy_reason,
			 related_listing_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + copyColumns

	var out models.MessageCopy
	err := scanCopy(db.Conn(ctx, s.pool).QueryRow(ctx, query,
		c.TenantID, c.MessageID, c.SenderID, c.ReceiverID, c.MessageBody, c.CopyReason,
		c.RelatedListingID, c.CreatedAt,
	), &out)
	if err != nil {
		return nil, fmt.Errorf("insert message copy: %w", err)
	}
	return &out, nil
}

const copyViewFrom = `
	FROM broker_message_copies c
	LEFT JOIN users su ON su.id = c.sender_id
	LEFT JOIN users ru ON ru.id = c.receiver_id
	LEFT JOIN listings l ON l.id = c.related_listing_id`

const copyViewColumns = copyColumns + `, COALESCE(su.display_name, ''), COALESCE(ru.display_name, ''), l.title`

func (s *CopyStore) Get(ctx context.Context, tenantID, copyID int64) (*models.MessageCopyView, error) {
	query := `SELECT ` + copyViewColumns + copyViewFrom + `
		WHERE c.tenant_id = $1 AND c.id = $2`

	var v models.MessageCopyView
	err := scanCopy(db.Conn(ctx, s.pool).QueryRow(ctx, query, tenantID, copyID),
		&v.MessageCopy, &v.SenderName, &v.ReceiverName, &v.ListingTitle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message copy: %w", err)
	}
	return &v, nil
}

func copyFilterSQL(f models.CopyFilter) string {
	switch f {
	case models.CopyFilterUnreviewed:
		return ` AND NOT c.reviewed`
	case models.CopyFilterFlagged:
		return ` AND c.flagged`
	case models.CopyFilterReviewed:
		return ` AND c.reviewed`
	default:
		return ``
	}
}

// List returns one page of the review queue, flagged copies first and then
// newest first.
func (s *CopyStore) List(ctx context.Context, tenantID int64, filter models.CopyFilter, p models.Pagination) ([]models.MessageCopyView, int, error) {
	where := ` WHERE c.tenant_id = $1` + copyFilterSQL(filter)
	conn := db.Conn(ctx, s.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM broker_message_copies c`+where, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count message copies: %w", err)
	}

	query := `SELECT ` + copyViewColumns + copyViewFrom + where + `
		ORDER BY c.flagged DESC, c.created_at DESC, c.id DESC
		LIMIT $2 OFFSET $3`

	rows, err := conn.Query(ctx, query, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list message copies: %w", err)
	}
	defer rows.Close()

	out := make([]models.MessageCopyView, 0)
	for rows.Next() {
		var v models.MessageCopyView
		if err := scanCopy(rows, &v.MessageCopy, &v.SenderName, &v.ReceiverName, &v.ListingTitle); err != nil {
			return nil, 0, fmt.Errorf("scan message copy: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate message copies: %w", err)
	}
	return out, total, nil
}

// MarkReviewed only touches unreviewed rows, so a repeated review keeps the
// first reviewer and timestamp.
func (s *CopyStore) MarkReviewed(ctx context.Context, tenantID, copyID, reviewerID int64, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE broker_message_copies
		SET reviewed = true, reviewed_at = $4, reviewed_by = $3
		WHERE tenant_id = $1 AND id = $2 AND NOT reviewed`,
		tenantID, copyID, reviewerID, at,
	)
	if err != nil {
		return false, fmt.Errorf("mark copy reviewed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Flag marks the copy flagged and reviewed. An already reviewed copy keeps
// its original reviewer.
func (s *CopyStore) Flag(ctx context.Context, tenantID, copyID, reviewerID int64, reason string, at time.Time) (bool, error) {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE broker_message_copies
		SET flagged = true,
			flag_reason = $5,
			reviewed = true,
			reviewed_at = COALESCE(reviewed_at, $4),
			reviewed_by = COALESCE(reviewed_by, $3)
		WHERE tenant_id = $1 AND id = $2
		  AND (NOT flagged OR flag_reason IS DISTINCT FROM $5)`,
		tenantID, copyID, reviewerID, at, reasonArg,
	)
	if err != nil {
		return false, fmt.Errorf("flag copy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CopyStore) CountUnreviewed(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM broker_message_copies WHERE tenant_id = $1 AND NOT reviewed`,
		tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unreviewed copies: %w", err)
	}
	return n, nil
}

func (s *CopyStore) DeleteExpired(ctx context.Context, tenantID int64, cutoff time.Time) (int64, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`DELETE FROM broker_message_copies WHERE tenant_id = $1 AND created_at < $2 AND reviewed AND NOT flagged`,
		tenantID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired copies: %w", err)
	}
	return tag.RowsAffected(), nil
}
