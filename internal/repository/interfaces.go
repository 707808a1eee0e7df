package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/policy"
)

// Every method that touches storage takes a context first and, except for
// the directory lookups used to detect cross-tenant access, a tenantID.
// Stores never trust the caller: every query filters by tenant.
//
// Lookups return nil, nil when the row does not exist.

// ErrVersionConflict is returned by versioned updates when the row changed
// since it was read.
var ErrVersionConflict = errors.New("version conflict")

// Transactor runs fn inside one transaction. Store calls made with the ctx
// passed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DirectoryRepository reads members and listings owned by the host
// application. Lookups are deliberately NOT tenant-scoped: the caller compares
// the returned TenantID to detect cross-tenant access.
type DirectoryRepository interface {
	GetMember(ctx context.Context, userID int64) (*models.Member, error)
	GetListing(ctx context.Context, listingID int64) (*models.Listing, error)
}

type TenantRepository interface {
	// ListIDs returns every tenant the sweeper should visit.
	ListIDs(ctx context.Context) ([]int64, error)
}

type PolicyRepository interface {
	// Get returns nil, nil when the tenant never saved a configuration.
	Get(ctx context.Context, tenantID int64) (*policy.Config, error)
	Put(ctx context.Context, tenantID int64, cfg policy.Config, updatedBy int64) error
}

// PolicyReader is what the core needs: a configuration that always exists.
type PolicyReader interface {
	Load(ctx context.Context, tenantID int64) (policy.Config, error)
}

type RiskTagRepository interface {
	Get(ctx context.Context, tenantID, listingID int64) (*models.RiskTag, error)
	Upsert(ctx context.Context, tag *models.RiskTag) (*models.RiskTag, error)
	// Delete reports whether a tag existed.
	Delete(ctx context.Context, tenantID, listingID int64) (bool, error)
	// List returns tags ordered critical first. level nil means all levels.
	List(ctx context.Context, tenantID int64, level *models.RiskLevel) ([]models.RiskTagView, error)
	CountHighRisk(ctx context.Context, tenantID int64) (int64, error)
}

// ContactRepository is the contact history tracker: pair history and the
// per-member monitoring record.
type ContactRepository interface {
	// MarkPair records that the pair has message history. It returns true
	// only for the single call that created the record; concurrent callers
	// for the same pair get exactly one true.
	MarkPair(ctx context.Context, tenantID int64, pair models.UserPair, messageID int64) (bool, error)
	HasHistory(ctx context.Context, tenantID int64, pair models.UserPair) (bool, error)

	// EnsureMonitoring returns the member's record, creating it with joinedAt
	// when missing. An existing JoinedAt is never overwritten.
	EnsureMonitoring(ctx context.Context, tenantID, userID int64, joinedAt time.Time) (*models.UserMonitoring, error)
	GetMonitoring(ctx context.Context, tenantID, userID int64) (*models.UserMonitoring, error)
	// SetMonitoring writes the flag fields of rec. The record must exist.
	SetMonitoring(ctx context.Context, rec *models.UserMonitoring) (*models.UserMonitoring, error)
	ListMonitoring(ctx context.Context, tenantID int64, filter models.MonitoringFilter, p models.Pagination) ([]models.MonitoringView, int, error)
	CountMonitored(ctx context.Context, tenantID int64) (int64, error)
}

// MessageRepository persists delivered direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error)
}

// CopyRepository persists broker copies.
type CopyRepository interface {
	Create(ctx context.Context, c *models.MessageCopy) (*models.MessageCopy, error)
	Get(ctx context.Context, tenantID, copyID int64) (*models.MessageCopyView, error)
	List(ctx context.Context, tenantID int64, filter models.CopyFilter, p models.Pagination) ([]models.MessageCopyView, int, error)
	// MarkReviewed reports whether the copy changed. An already reviewed copy
	// is left untouched.
	MarkReviewed(ctx context.Context, tenantID, copyID, reviewerID int64, at time.Time) (bool, error)
	// Flag reports whether the copy changed.
	Flag(ctx context.Context, tenantID, copyID, reviewerID int64, reason string, at time.Time) (bool, error)
	CountUnreviewed(ctx context.Context, tenantID int64) (int64, error)
	// DeleteExpired removes reviewed, unflagged copies created before cutoff.
	// A copy no broker has read is kept whatever its age.
	DeleteExpired(ctx context.Context, tenantID int64, cutoff time.Time) (int64, error)
}

type ExchangeRepository interface {
	Create(ctx context.Context, ex *models.ExchangeRequest) (*models.ExchangeRequest, error)
	Get(ctx context.Context, tenantID, exchangeID int64) (*models.ExchangeRequest, error)
	// Update writes ex if the stored version still equals ex.Version, then
	// bumps ex.Version. Otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, ex *models.ExchangeRequest) error
	AppendHistory(ctx context.Context, entry *models.ExchangeHistoryEntry) error
	History(ctx context.Context, tenantID, exchangeID int64) ([]models.ExchangeHistoryEntry, error)
	// List returns exchanges in any of statuses, newest first. Empty
	// statuses means all.
	List(ctx context.Context, tenantID int64, statuses []models.ExchangeStatus, p models.Pagination) ([]models.ExchangeRequest, int, error)
	// ListDue returns exchanges whose broker or confirmation deadline is at
	// or before now and that are still in a state the deadline applies to.
	ListDue(ctx context.Context, tenantID int64, now time.Time, limit int) ([]models.ExchangeRequest, error)
	CountByStatus(ctx context.Context, tenantID int64, status models.ExchangeStatus) (int64, error)
	// ExistsForListing reports whether the two members have any exchange
	// request on the listing, in either direction.
	ExistsForListing(ctx context.Context, tenantID, listingID int64, pair models.UserPair) (bool, error)
}
