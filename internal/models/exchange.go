package models

import "time"

// ExchangeStatus is a state of the exchange workflow. The legal moves
// between states live in the exchange package's transition table.
type ExchangeStatus string

const (
	StatusRequested            ExchangeStatus = "requested"
	StatusPendingBroker        ExchangeStatus = "pending_broker"
	StatusApproved             ExchangeStatus = "approved"
	StatusAutoApproved         ExchangeStatus = "auto_approved"
	StatusRejected             ExchangeStatus = "rejected"
	StatusAwaitingConfirmation ExchangeStatus = "awaiting_confirmation"
	StatusCompleted            ExchangeStatus = "completed"
	StatusDisputed             ExchangeStatus = "disputed"
	StatusExpired              ExchangeStatus = "expired"
	StatusCancelled            ExchangeStatus = "cancelled"
)

// ExchangeRequest is a structured, broker-mediated proposal to trade a
// service for time credits.
//
// Version increments on every write. Updates must carry the version they
// read; a stale version is rejected by the store.
type ExchangeRequest struct {
	ID                      int64          `json:"id"`
	TenantID                int64          `json:"tenant_id"`
	RequesterID             int64          `json:"requester_id"`
	ProviderID              int64          `json:"provider_id"`
	ListingID               int64          `json:"listing_id"`
	Status                  ExchangeStatus `json:"status"`
	HoursRequested          float64        `json:"hours_requested"`
	RequesterNotes          *string        `json:"requester_notes"`
	CreatedAt               time.Time      `json:"created_at"`
	BrokerDecisionAt        *time.Time     `json:"broker_decision_at"`
	BrokerDecisionBy        *int64         `json:"broker_decision_by"`
	BrokerNotes             *string        `json:"broker_notes"`
	RejectionReason         *string        `json:"rejection_reason"`
	RequesterConfirmedAt    *time.Time     `json:"requester_confirmed_at"`
	RequesterConfirmedHours *float64       `json:"requester_confirmed_hours"`
	ProviderConfirmedAt     *time.Time     `json:"provider_confirmed_at"`
	ProviderConfirmedHours  *float64       `json:"provider_confirmed_hours"`
	FinalHours              *float64       `json:"final_hours"`
	ConfirmationDeadline    *time.Time     `json:"confirmation_deadline"`
	ExpiresAt               *time.Time     `json:"expires_at"`
	Version                 int64          `json:"version"`
}

// IsParticipant reports whether userID is the requester or the provider.
func (e *ExchangeRequest) IsParticipant(userID int64) bool {
	return userID == e.RequesterID || userID == e.ProviderID
}

// BothConfirmed is true once requester and provider have each confirmed.
func (e *ExchangeRequest) BothConfirmed() bool {
	return e.RequesterConfirmedAt != nil && e.ProviderConfirmedAt != nil
}

// ActorRole names who performed an exchange action in the history trail.
type ActorRole string

const (
	RoleRequester ActorRole = "requester"
	RoleProvider  ActorRole = "provider"
	RoleBroker    ActorRole = "broker"
	RoleSystem    ActorRole = "system"
)

// ExchangeHistoryEntry is one row of an exchange's audit trail. Status
// changes carry Old/NewStatus; confirmations only carry notes.
type ExchangeHistoryEntry struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"tenant_id"`
	ExchangeID int64           `json:"exchange_id"`
	Action     string          `json:"action"`
	ActorID    *int64          `json:"actor_id"`
	ActorRole  ActorRole       `json:"actor_role"`
	OldStatus  *ExchangeStatus `json:"old_status"`
	NewStatus  *ExchangeStatus `json:"new_status"`
	Notes      *string         `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ExchangeDetail is an exchange with its full history.
type ExchangeDetail struct {
	ExchangeRequest
	History []ExchangeHistoryEntry `json:"history"`
}
