package models

import (
	"strings"
	"time"
)

// CopyReason records which rule caused a broker copy to be captured.
// Exactly one reason is stored per copy; rules are not cumulative.
type CopyReason string

const (
	CopyReasonFirstContact     CopyReason = "first_contact"
	CopyReasonNewMember        CopyReason = "new_member"
	CopyReasonHighRiskListing  CopyReason = "high_risk_listing"
	CopyReasonFlaggedUser      CopyReason = "flagged_user"
	CopyReasonManualMonitoring CopyReason = "manual_monitoring"
	CopyReasonRandomSample     CopyReason = "random_sample"
)

// CopyReasons lists every reason in rule-priority order.
var CopyReasons = []CopyReason{
	CopyReasonFirstContact,
	CopyReasonNewMember,
	CopyReasonHighRiskListing,
	CopyReasonFlaggedUser,
	CopyReasonManualMonitoring,
	CopyReasonRandomSample,
}

func (r CopyReason) Valid() bool {
	for _, known := range CopyReasons {
		if r == known {
			return true
		}
	}
	return false
}

// MessageCopy is the broker's duplicate of a member message.
//
// Body, parties and reason never change after insert. Only the reviewer
// fields (Reviewed*, Flagged*) are written afterwards.
type MessageCopy struct {
	ID               int64      `json:"id"`
	TenantID         int64      `json:"tenant_id"`
	MessageID        *int64     `json:"message_id"`
	SenderID         int64      `json:"sender_id"`
	ReceiverID       int64      `json:"receiver_id"`
	MessageBody      string     `json:"message_body"`
	CopyReason       CopyReason `json:"copy_reason"`
	RelatedListingID *int64     `json:"related_listing_id"`
	CreatedAt        time.Time  `json:"created_at"`
	Reviewed         bool       `json:"reviewed"`
	ReviewedAt       *time.Time `json:"reviewed_at"`
	ReviewedBy       *int64     `json:"reviewed_by"`
	Flagged          bool       `json:"flagged"`
	FlagReason       *string    `json:"flag_reason"`
}

// MessageCopyView is a copy joined with the names the moderation UI shows.
// ListingTitle is always serialized, as null when there is no listing.
type MessageCopyView struct {
	MessageCopy
	SenderName   string  `json:"sender_name"`
	ReceiverName string  `json:"receiver_name"`
	ListingTitle *string `json:"listing_title"`
}

// CopyFilter selects which copies the review queue lists.
type CopyFilter string

const (
	CopyFilterUnreviewed CopyFilter = "unreviewed"
	CopyFilterFlagged    CopyFilter = "flagged"
	CopyFilterReviewed   CopyFilter = "reviewed"
	CopyFilterAll        CopyFilter = "all"
)

func (f CopyFilter) Valid() bool {
	switch f {
	case CopyFilterUnreviewed, CopyFilterFlagged, CopyFilterReviewed, CopyFilterAll:
		return true
	}
	return false
}

// Matches reports whether c belongs in the queue selected by f.
func (f CopyFilter) Matches(c *MessageCopy) bool {
	switch f {
	case CopyFilterUnreviewed:
		return !c.Reviewed
	case CopyFilterFlagged:
		return c.Flagged
	case CopyFilterReviewed:
		return c.Reviewed
	default:
		return true
	}
}

// RiskLevel classifies a listing's safeguarding/insurance exposure.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// IsHigh is true for the two levels that escalate messages and exchanges.
func (l RiskLevel) IsHigh() bool {
	return l == RiskHigh || l == RiskCritical
}

// Rank orders levels for sorting, critical first.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskCritical:
		return 0
	case RiskHigh:
		return 1
	case RiskMedium:
		return 2
	default:
		return 3
	}
}

// RiskTag is the broker's classification of one listing.
type RiskTag struct {
	TenantID          int64     `json:"tenant_id"`
	ListingID         int64     `json:"listing_id"`
	RiskLevel         RiskLevel `json:"risk_level"`
	RiskCategory      *string   `json:"risk_category"`
	RiskNotes         *string   `json:"risk_notes"`
	DBSRequired       bool      `json:"dbs_required"`
	InsuranceRequired bool      `json:"insurance_required"`
	TaggedBy          int64     `json:"tagged_by"`
	TaggedAt          time.Time `json:"tagged_at"`
}

// RequiresVetting is true when the provider must hold a DBS check or
// insurance before an exchange on the listing can go ahead.
func (t *RiskTag) RequiresVetting() bool {
	return t.DBSRequired || t.InsuranceRequired
}

type RiskTagView struct {
	RiskTag
	ListingTitle *string `json:"listing_title"`
}

// FlaggedReasonPrefix marks a monitoring reason as a flagged-user policy.
const FlaggedReasonPrefix = "flagged"

// UserMonitoring is the per-member compliance record. It is created lazily
// and never deleted.
type UserMonitoring struct {
	TenantID          int64      `json:"tenant_id"`
	UserID            int64      `json:"user_id"`
	JoinedAt          time.Time  `json:"joined_at"`
	UnderMonitoring   bool       `json:"under_monitoring"`
	MessagingDisabled bool       `json:"messaging_disabled"`
	MonitoringReason  *string    `json:"monitoring_reason"`
	MonitoringSetBy   *int64     `json:"monitoring_set_by"`
	MonitoringSetAt   *time.Time `json:"monitoring_set_at"`
}

// IsFlagged reports whether the member is under a flagged-user policy.
func (m *UserMonitoring) IsFlagged() bool {
	if m == nil || m.MonitoringReason == nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(*m.MonitoringReason)), FlaggedReasonPrefix)
}

type MonitoringView struct {
	UserMonitoring
	DisplayName       string `json:"display_name"`
	FirstContactCount int64  `json:"first_contact_count"`
}

// MonitoringFilter selects rows for the monitoring admin list.
type MonitoringFilter string

const (
	MonitoringFilterAll        MonitoringFilter = "all"
	MonitoringFilterRestricted MonitoringFilter = "restricted"
	MonitoringFilterMonitored  MonitoringFilter = "monitored"
	MonitoringFilterFlagged    MonitoringFilter = "flagged"
)

func (f MonitoringFilter) Valid() bool {
	switch f {
	case MonitoringFilterAll, MonitoringFilterRestricted, MonitoringFilterMonitored, MonitoringFilterFlagged:
		return true
	}
	return false
}

func (f MonitoringFilter) Matches(m *UserMonitoring) bool {
	switch f {
	case MonitoringFilterRestricted:
		return m.MessagingDisabled
	case MonitoringFilterMonitored:
		return m.UnderMonitoring
	case MonitoringFilterFlagged:
		return m.IsFlagged()
	default:
		return true
	}
}

// DashboardCounts feeds GET /admin/broker/dashboard.
type DashboardCounts struct {
	PendingExchanges   int64 `json:"pending_exchanges"`
	UnreviewedMessages int64 `json:"unreviewed_messages"`
	HighRiskListings   int64 `json:"high_risk_listings"`
	MonitoredUsers     int64 `json:"monitored_users"`
}

// Pagination is a 1-based page request.
type Pagination struct {
	Page    int
	PerPage int
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Page is one page of a list endpoint. Items is never nil so it encodes as [].
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

func NewPage[T any](items []T, total int, p Pagination) Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Page[T]{Items: items, Total: total, Page: p.Page, PerPage: p.PerPage, Pages: pages}
}
