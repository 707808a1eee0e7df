package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/lalith-99/brokerguard/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Create persists a delivered message. Messages use bigserial, so the id
// comes back through RETURNING.
func (s *MessageStore) Create(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error) {
	query := `
		INSERT INTO messages (tenant_id, sender_id, receiver_id, body, listing_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, sender_id, receiver_id, body, listing_id, created_at`

	var out models.DirectMessage
	err := db.Conn(ctx, s.pool).QueryRow(ctx, query,
		msg.TenantID, msg.SenderID, msg.ReceiverID, msg.Body, msg.ListingID, msg.CreatedAt,
	).Scan(
		&out.ID,
		&out.TenantID,
		&out.SenderID,
		&out.ReceiverID,
		&out.Body,
		&out.ListingID,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &out, nil
}
