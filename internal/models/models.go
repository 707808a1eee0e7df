package models

import (
	"time"
)

// Tenant is the top-level isolation boundary (one timebank community).
// Every member, listing, copy and exchange belongs to exactly one tenant.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a person within a tenant, as the host application's directory
// knows them. The compliance core only reads members.
//
// CreatedAt is the join date. The monitoring record copies it into JoinedAt
// the first time the member sends a message or requests an exchange.
type Member struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Listing is an offer or request posted by a member. OwnerID is the provider
// when someone requests an exchange on it.
type Listing struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	OwnerID  int64  `json:"owner_id"`
	Title    string `json:"title"`
}

// DirectMessage is a single member-to-member message.
type DirectMessage struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"body"`
	ListingID  *int64    `json:"listing_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserPair is an unordered pair of members stored in canonical order
// (Low < High), so A→B and B→A share one contact history row.
type UserPair struct {
	Low  int64
	High int64
}

// NewUserPair orders a and b.
func NewUserPair(a, b int64) UserPair {
	if a > b {
		a, b = b, a
	}
	return UserPair{Low: a, High: b}
}
