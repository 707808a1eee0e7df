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
	"github.com/lalith-99/brokerguard/internal/repository"
)

type ExchangeStore struct {
	pool *pgxpool.Pool
}

func NewExchangeStore(pool *pgxpool.Pool) *ExchangeStore {
	return &ExchangeStore{pool: pool}
}

const exchangeColumns = `id, tenant_id, requester_id, provider_id, listing_id, status, hours_requested,
	requester_notes, created_at, broker_decision_at, broker_decision_by, broker_notes, rejection_reason,
	requester_confirmed_at, requester_confirmed_hours, provider_confirmed_at, provider_confirmed_hours,
	final_hours, confirmation_deadline, expires_at, version`

func scanExchange(row pgx.Row, e *models.ExchangeRequest) error {
	return row.Scan(
		&e.ID,
		&e.TenantID,
		&e.RequesterID,
		&e.ProviderID,
		&e.ListingID,
		&e.Status,
		&e.HoursRequested,
		&e.RequesterNotes,
		&e.CreatedAt,
		&e.BrokerDecisionAt,
		&e.BrokerDecisionBy,
		&e.BrokerNotes,
		&e.RejectionReason,
		&e.RequesterConfirmedAt,
		&e.RequesterConfirmedHours,
		&e.ProviderConfirmedAt,
		&e.ProviderConfirmedHours,
		&e.FinalHours,
		&e.ConfirmationDeadline,
		&e.ExpiresAt,
		&e.Version,
	)
}

func collectExchanges(rows pgx.Rows) ([]models.ExchangeRequest, error) {
	defer rows.Close()

	out := make([]models.ExchangeRequest, 0)
	for rows.Next() {
		var e models.ExchangeRequest
		if err := scanExchange(rows, &e); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}

func (s *ExchangeStore) Create(ctx context.Context, ex *models.ExchangeRequest) (*models.ExchangeRequest, error) {
	query := `
		INSERT INTO exchange_requests
			(tenant_id, requester_id, provider_id, listing_id, status, hours_requested,
			 requester_notes, created_at, broker_decision_at, broker_decision_by,
			 confirmation_deadline, expires_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		RETURNING ` + exchangeColumns

	var out models.ExchangeRequest
	err := scanExchange(db.Conn(ctx, s.pool).QueryRow(ctx, query,
		ex.TenantID, ex.RequesterID, ex.ProviderID, ex.ListingID, ex.Status, ex.HoursRequested,
		ex.RequesterNotes, ex.CreatedAt, ex.BrokerDecisionAt, ex.BrokerDecisionBy,
		ex.ConfirmationDeadline, ex.ExpiresAt,
	), &out)
	if err != nil {
		return nil, fmt.Errorf("insert exchange: %w", err)
	}
	return &out, nil
}

func (s *ExchangeStore) Get(ctx context.Context, tenantID, exchangeID int64) (*models.ExchangeRequest, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchange_requests WHERE tenant_id = $1 AND id = $2`

	var e models.ExchangeRequest
	if err := scanExchange(db.Conn(ctx, s.pool).QueryRow(ctx, query, tenantID, exchangeID), &e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exchange: %w", err)
	}
	return &e, nil
}

// Update is a compare-and-swap on version. Zero rows affected means another
// writer got there first.
func (s *ExchangeStore) Update(ctx context.Context, ex *models.ExchangeRequest) error {
	query := `
		UPDATE exchange_requests
		SET status = $4,
			broker_decision_at = $5,
			broker_decision_by = $6,
			broker_notes = $7,
			rejection_reason = $8,
			requester_confirmed_at = $9,
			requester_confirmed_hours = $10,
			provider_confirmed_at = $11,
			provider_confirmed_hours = $12,
			final_hours = $13,
			confirmation_deadline = $14,
			expires_at = $15,
			version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND version = $3`

	tag, err := db.Conn(ctx, s.pool).Exec(ctx, query,
		ex.TenantID, ex.ID, ex.Version,
		ex.Status, ex.BrokerDecisionAt, ex.BrokerDecisionBy, ex.BrokerNotes, ex.RejectionReason,
		ex.RequesterConfirmedAt, ex.RequesterConfirmedHours,
		ex.ProviderConfirmedAt, ex.ProviderConfirmedHours,
		ex.FinalHours, ex.ConfirmationDeadline, ex.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update exchange: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrVersionConflict
	}
	ex.Version++
	return nil
}

func (s *ExchangeStore) AppendHistory(ctx context.Context, entry *models.ExchangeHistoryEntry) error {
	query := `
		INSERT INTO exchange_history
			(tenant_id, exchange_id, action, actor_id, actor_role, old_status, new_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := db.Conn(ctx, s.pool).QueryRow(ctx, query,
		entry.TenantID, entry.ExchangeID, entry.Action, entry.ActorID, entry.ActorRole,
		entry.OldStatus, entry.NewStatus, entry.Notes, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append exchange history: %w", err)
	}
	return nil
}

func (s *ExchangeStore) History(ctx context.Context, tenantID, exchangeID int64) ([]models.ExchangeHistoryEntry, error) {
	query := `
		SELECT id, tenant_id, exchange_id, action, actor_id, actor_role, old_status, new_status, notes, created_at
		FROM exchange_history
		WHERE tenant_id = $1 AND exchange_id = $2
		ORDER BY created_at, id`

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, tenantID, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("list exchange history: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExchangeHistoryEntry, 0)
	for rows.Next() {
		var h models.ExchangeHistoryEntry
		if err := rows.Scan(
			&h.ID,
			&h.TenantID,
			&h.ExchangeID,
			&h.Action,
			&h.ActorID,
			&h.ActorRole,
			&h.OldStatus,
			&h.NewStatus,
			&h.Notes,
			&h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan exchange history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange history: %w", err)
	}
	return out, nil
}

func statusStrings(statuses []models.ExchangeStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *ExchangeStore) List(ctx context.Context, tenantID int64, statuses []models.ExchangeStatus, p models.Pagination) ([]models.ExchangeRequest, int, error) {
	conn := db.Conn(ctx, s.pool)
	where := ` WHERE tenant_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))`
	st := statusStrings(statuses)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM exchange_requests`+where, tenantID, st).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count exchanges: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT `+exchangeColumns+` FROM exchange_requests`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, tenantID, st, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list exchanges: %w", err)
	}
	out, err := collectExchanges(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *ExchangeStore) ListDue(ctx context.Context, tenantID int64, now time.Time, limit int) ([]models.ExchangeRequest, error) {
	query := `SELECT ` + exchangeColumns + `
		FROM exchange_requests
		WHERE tenant_id = $1
		  AND ((status = 'pending_broker' AND expires_at <= $2)
		    OR (status IN ('approved', 'auto_approved', 'awaiting_confirmation') AND confirmation_deadline <= $2))
		ORDER BY id
		LIMIT $3`

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, tenantID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due exchanges: %w", err)
	}
	return collectExchanges(rows)
}

func (s *ExchangeStore) CountByStatus(ctx context.Context, tenantID int64, status models.ExchangeStatus) (int64, error) {
	var n int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM exchange_requests WHERE tenant_id = $1 AND status = $2`,
		tenantID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count exchanges by status: %w", err)
	}
	return n, nil
}

func (s *ExchangeStore) ExistsForListing(ctx context.Context, tenantID, listingID int64, pair models.UserPair) (bool, error) {
	var exists bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM exchange_requests
			WHERE tenant_id = $1 AND listing_id = $2
			  AND LEAST(requester_id, provider_id) = $3
			  AND GREATEST(requester_id, provider_id) = $4)`,
		tenantID, listingID, pair.Low, pair.High,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check exchange for listing: %w", err)
	}
	return exists, nil
}
