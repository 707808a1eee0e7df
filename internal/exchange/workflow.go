package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/observ"
	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/repository"
	"github.com/lalith-99/brokerguard/internal/tenancy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// Confirmed hours are clamped to hours_requested ± this fraction.
	maxHourVariance = 0.25
	// Confirmations closer than this complete with the requester's value.
	exactHoursTolerance = 0.01
	// Confirmations within this complete with the average; beyond it the
	// exchange is disputed.
	averageHoursTolerance = 0.25

	dueBatchSize = 500
)

var errNotDue = errors.New("exchange no longer due")

type Stores struct {
	Tx        repository.Transactor
	Policies  repository.PolicyReader
	RiskTags  repository.RiskTagRepository
	Contacts  repository.ContactRepository
	Exchanges repository.ExchangeRepository
}

// Workflow owns every status change of an exchange request. Each change is
// a versioned write plus its history rows in one transaction.
type Workflow struct {
	stores Stores
	guard  *tenancy.Guard
	logger *zap.Logger
	opts   options
}

func NewWorkflow(stores Stores, guard *tenancy.Guard, logger *zap.Logger, opts ...Option) *Workflow {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		audit: audit.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Workflow{stores: stores, guard: guard, logger: logger, opts: o}
}

type CreateInput struct {
	RequesterID int64
	ListingID   int64
	Hours       float64
	Notes       string
}

// autoApprovable is the entry rule: only short exchanges on untagged or
// low-risk listings skip the broker, and only when the tenant allows it.
// With risk_tagging.high_risk_requires_approval set, a low tag that demands
// a DBS check or insurance also goes to the broker.
func autoApprovable(cfg policy.Config, tag *models.RiskTag, hours float64) bool {
	wf := cfg.ExchangeWorkflow
	if wf.RequireBrokerApproval || !wf.AutoApproveLowRisk {
		return false
	}
	if tag != nil {
		if tag.RiskLevel != models.RiskLow {
			return false
		}
		if tag.RequiresVetting() && cfg.RiskTagging.HighRiskRequiresApproval {
			return false
		}
	}
	return hours <= wf.MaxHoursWithoutApproval
}

// Create opens an exchange on a listing. The provider is the listing owner.
func (w *Workflow) Create(ctx context.Context, tenantID int64, in CreateInput) (*models.ExchangeRequest, error) {
	ctx, span := observ.Tracer().Start(ctx, "exchange.Create", trace.WithAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Int64("listing_id", in.ListingID),
	))
	defer span.End()

	cfg, err := w.stores.Policies.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.ExchangeWorkflow.Enabled {
		return nil, apperr.ErrWorkflowDisabled
	}
	if in.Hours <= 0 || math.IsNaN(in.Hours) || math.IsInf(in.Hours, 0) {
		return nil, apperr.Validation("hours must be a positive number")
	}

	requester, err := w.guard.Member(ctx, tenantID, in.RequesterID)
	if err != nil {
		return nil, err
	}
	listing, err := w.guard.Listing(ctx, tenantID, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID == requester.ID {
		return nil, apperr.Validation("cannot request an exchange on your own listing")
	}
	if _, err := w.guard.Member(ctx, tenantID, listing.OwnerID); err != nil {
		return nil, err
	}
	tag, err := w.stores.RiskTags.Get(ctx, tenantID, listing.ID)
	if err != nil {
		return nil, err
	}

	now := w.opts.now()
	ex := &models.ExchangeRequest{
		TenantID:       tenantID,
		RequesterID:    requester.ID,
		ProviderID:     listing.OwnerID,
		ListingID:      listing.ID,
		HoursRequested: in.Hours,
		CreatedAt:      now,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		ex.RequesterNotes = &notes
	}
	if autoApprovable(cfg, tag, in.Hours) {
		ex.Status = models.StatusAutoApproved
		ex.BrokerDecisionAt = &now
		deadline := now.Add(cfg.ConfirmationWindow())
		ex.ConfirmationDeadline = &deadline
	} else {
		ex.Status = models.StatusPendingBroker
		expires := now.Add(cfg.ExpiryWindow())
		ex.ExpiresAt = &expires
	}

	var created *models.ExchangeRequest
	var step models.ExchangeHistoryEntry
	err = w.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := w.stores.Contacts.EnsureMonitoring(ctx, tenantID, requester.ID, requester.CreatedAt); err != nil {
			return err
		}
		var err error
		if created, err = w.stores.Exchanges.Create(ctx, ex); err != nil {
			return err
		}
		from, to := models.StatusRequested, created.Status
		step = models.ExchangeHistoryEntry{
			TenantID:   tenantID,
			ExchangeID: created.ID,
			Action:     "requested",
			ActorID:    &requester.ID,
			ActorRole:  models.RoleRequester,
			OldStatus:  &from,
			NewStatus:  &to,
			Notes:      ex.RequesterNotes,
			CreatedAt:  now,
		}
		return w.stores.Exchanges.AppendHistory(ctx, &step)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("status", string(created.Status)))
	w.announce(ctx, created, []models.ExchangeHistoryEntry{step})
	if tag != nil && tag.RiskLevel.IsHigh() && cfg.RiskTagging.NotifyOnHighRiskMatch {
		w.opts.audit.Publish(ctx, audit.Event{
			Type:       audit.EventHighRiskMatch,
			TenantID:   tenantID,
			ActorID:    &requester.ID,
			SubjectID:  listing.ID,
			Reason:     string(tag.RiskLevel),
			Details:    map[string]any{"source": "exchange", "exchange_id": created.ID},
			OccurredAt: now,
		})
	}
	return created, nil
}

// Approve records the broker's approval of a pending exchange and starts the
// confirmation window.
func (w *Workflow) Approve(ctx context.Context, tenantID, exchangeID, brokerID int64, notes string) (*models.ExchangeRequest, error) {
	cfg, err := w.stores.Policies.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return w.apply(ctx, tenantID, exchangeID, actor{id: &brokerID, role: models.RoleBroker}, "exchange.Approve",
		func(t *transition) error {
			if err := t.decidable(); err != nil {
				return err
			}
			t.ex.BrokerDecisionAt = &t.now
			t.ex.BrokerDecisionBy = &brokerID
			t.ex.BrokerNotes = optional(notes)
			deadline := t.now.Add(cfg.ConfirmationWindow())
			t.ex.ConfirmationDeadline = &deadline
			return t.move(models.StatusApproved, "approved", optional(notes))
		})
}

// Reject refuses a pending exchange. The reason is mandatory.
func (w *Workflow) Reject(ctx context.Context, tenantID, exchangeID, brokerID int64, reason string) (*models.ExchangeRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	return w.apply(ctx, tenantID, exchangeID, actor{id: &brokerID, role: models.RoleBroker}, "exchange.Reject",
		func(t *transition) error {
			if err := t.decidable(); err != nil {
				return err
			}
			t.ex.BrokerDecisionAt = &t.now
			t.ex.BrokerDecisionBy = &brokerID
			t.ex.RejectionReason = &reason
			return t.move(models.StatusRejected, "rejected", &reason)
		})
}

// MarkReady opens confirmation on an approved exchange.
func (w *Workflow) MarkReady(ctx context.Context, tenantID, exchangeID, userID int64) (*models.ExchangeRequest, error) {
	return w.apply(ctx, tenantID, exchangeID, actor{id: &userID}, "exchange.MarkReady",
		func(t *transition) error {
			if err := t.participant(); err != nil {
				return err
			}
			if t.ex.Status != models.StatusApproved && t.ex.Status != models.StatusAutoApproved {
				return t.invalid(models.StatusAwaitingConfirmation)
			}
			return t.move(models.StatusAwaitingConfirmation, "ready", nil)
		})
}

// Confirm records one party's confirmation. hours nil confirms the
// requested hours. When both parties have confirmed the exchange completes,
// or is disputed if their hours disagree.
func (w *Workflow) Confirm(ctx context.Context, tenantID, exchangeID, userID int64, hours *float64) (*models.ExchangeRequest, error) {
	if hours != nil && (*hours <= 0 || math.IsNaN(*hours) || math.IsInf(*hours, 0)) {
		return nil, apperr.Validation("hours must be a positive number")
	}
	return w.apply(ctx, tenantID, exchangeID, actor{id: &userID}, "exchange.Confirm",
		func(t *transition) error {
			if err := t.participant(); err != nil {
				return err
			}
			if err := t.openConfirmation(); err != nil {
				return err
			}

			h := t.ex.HoursRequested
			if hours != nil {
				h = clampHours(*hours, t.ex.HoursRequested)
			}
			note := fmt.Sprintf("confirmed %.2f hours", h)
			if t.actor.role == models.RoleRequester {
				if t.ex.RequesterConfirmedAt != nil {
					return apperr.ErrAlreadyConfirmed
				}
				t.ex.RequesterConfirmedAt = &t.now
				t.ex.RequesterConfirmedHours = &h
				t.note("requester_confirmed", &note)
			} else {
				if t.ex.ProviderConfirmedAt != nil {
					return apperr.ErrAlreadyConfirmed
				}
				t.ex.ProviderConfirmedAt = &t.now
				t.ex.ProviderConfirmedHours = &h
				t.note("provider_confirmed", &note)
			}

			if !t.ex.BothConfirmed() {
				return nil
			}
			return t.settle()
		})
}

// Dispute moves the exchange to disputed for a broker to resolve.
func (w *Workflow) Dispute(ctx context.Context, tenantID, exchangeID, userID int64, reason string) (*models.ExchangeRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	return w.apply(ctx, tenantID, exchangeID, actor{id: &userID}, "exchange.Dispute",
		func(t *transition) error {
			if err := t.participant(); err != nil {
				return err
			}
			if err := t.openConfirmation(); err != nil {
				return err
			}
			return t.move(models.StatusDisputed, "disputed", &reason)
		})
}

// Cancel withdraws an exchange that has not reached a final state. Either
// party may cancel.
func (w *Workflow) Cancel(ctx context.Context, tenantID, exchangeID, userID int64, reason string) (*models.ExchangeRequest, error) {
	return w.apply(ctx, tenantID, exchangeID, actor{id: &userID}, "exchange.Cancel",
		func(t *transition) error {
			if err := t.participant(); err != nil {
				return err
			}
			if t.ex.Status == models.StatusDisputed {
				// Disputes are closed by a broker.
				return t.invalid(models.StatusCancelled)
			}
			return t.move(models.StatusCancelled, "cancelled", optional(reason))
		})
}

type Resolution struct {
	Outcome models.ExchangeStatus
	Hours   *float64
	Notes   string
}

// Resolve closes a disputed exchange as completed or cancelled. A completed
// resolution without hours settles on the average of the confirmations, or
// the requested hours when nobody confirmed.
func (w *Workflow) Resolve(ctx context.Context, tenantID, exchangeID, brokerID int64, res Resolution) (*models.ExchangeRequest, error) {
	if res.Outcome != models.StatusCompleted && res.Outcome != models.StatusCancelled {
		return nil, apperr.Validation("outcome must be completed or cancelled")
	}
	if res.Hours != nil && (*res.Hours <= 0 || math.IsNaN(*res.Hours) || math.IsInf(*res.Hours, 0)) {
		return nil, apperr.Validation("hours must be a positive number")
	}
	return w.apply(ctx, tenantID, exchangeID, actor{id: &brokerID, role: models.RoleBroker}, "exchange.Resolve",
		func(t *transition) error {
			if t.ex.Status != models.StatusDisputed {
				return t.invalid(res.Outcome)
			}
			t.ex.BrokerNotes = optional(res.Notes)
			if res.Outcome == models.StatusCompleted {
				final := resolvedHours(t.ex, res.Hours)
				t.ex.FinalHours = &final
			}
			return t.move(res.Outcome, "resolved", optional(res.Notes))
		})
}

// ExpireDue moves every exchange whose deadline passed before now to
// expired and returns how many moved. A conflict on one exchange is logged
// and left for the next sweep.
func (w *Workflow) ExpireDue(ctx context.Context, tenantID int64, now time.Time) (int, error) {
	ctx, span := observ.Tracer().Start(ctx, "exchange.ExpireDue", trace.WithAttributes(
		attribute.Int64("tenant_id", tenantID),
	))
	defer span.End()

	due, err := w.stores.Exchanges.ListDue(ctx, tenantID, now, dueBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, ex := range due {
		_, err := w.apply(ctx, tenantID, ex.ID, actor{role: models.RoleSystem}, "exchange.Expire",
			func(t *transition) error {
				switch t.ex.Status {
				case models.StatusPendingBroker:
					if t.ex.ExpiresAt == nil || t.ex.ExpiresAt.After(now) {
						return errNotDue
					}
				case models.StatusApproved, models.StatusAutoApproved, models.StatusAwaitingConfirmation:
					if t.ex.ConfirmationDeadline == nil || t.ex.ConfirmationDeadline.After(now) {
						return errNotDue
					}
					if t.ex.Status != models.StatusAwaitingConfirmation {
						if err := t.move(models.StatusAwaitingConfirmation, "ready", nil); err != nil {
							return err
						}
					}
				default:
					return errNotDue
				}
				return t.move(models.StatusExpired, "expired", optional("deadline passed"))
			})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, errNotDue):
		case errors.Is(err, apperr.ErrConcurrencyConflict):
			w.logger.Warn("exchange changed during expiry, retrying next sweep",
				zap.Int64("tenant_id", tenantID), zap.Int64("exchange_id", ex.ID))
		default:
			return expired, fmt.Errorf("expire exchange %d: %w", ex.ID, err)
		}
	}
	span.SetAttributes(attribute.Int("expired", expired))
	return expired, nil
}

// Get returns the exchange with its history. A non-nil viewerID restricts
// access to the two parties.
func (w *Workflow) Get(ctx context.Context, tenantID, exchangeID int64, viewerID *int64) (*models.ExchangeDetail, error) {
	ex, err := w.stores.Exchanges.Get(ctx, tenantID, exchangeID)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, apperr.NotFound("exchange")
	}
	if viewerID != nil && !ex.IsParticipant(*viewerID) {
		return nil, apperr.ErrNotParticipant
	}
	history, err := w.stores.Exchanges.History(ctx, tenantID, exchangeID)
	if err != nil {
		return nil, err
	}
	return &models.ExchangeDetail{ExchangeRequest: *ex, History: history}, nil
}

func (w *Workflow) List(ctx context.Context, tenantID int64, statuses []models.ExchangeStatus, p models.Pagination) (models.Page[models.ExchangeRequest], error) {
	items, total, err := w.stores.Exchanges.List(ctx, tenantID, statuses, p)
	if err != nil {
		return models.Page[models.ExchangeRequest]{}, err
	}
	return models.NewPage(items, total, p), nil
}

// apply runs change against a fresh read of the exchange and writes the
// result with a version check. A lost race is retried once from a new read;
// a second loss surfaces as ErrConcurrencyConflict.
func (w *Workflow) apply(ctx context.Context, tenantID, exchangeID int64, who actor, op string, change func(t *transition) error) (*models.ExchangeRequest, error) {
	ctx, span := observ.Tracer().Start(ctx, op, trace.WithAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Int64("exchange_id", exchangeID),
	))
	defer span.End()

	for attempt := 1; attempt <= 2; attempt++ {
		var t *transition
		err := w.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
			ex, err := w.stores.Exchanges.Get(ctx, tenantID, exchangeID)
			if err != nil {
				return err
			}
			if ex == nil {
				return apperr.NotFound("exchange")
			}

			t = &transition{ex: ex, now: w.opts.now(), actor: who}
			if err := change(t); err != nil {
				return err
			}
			if err := w.stores.Exchanges.Update(ctx, ex); err != nil {
				return err
			}
			for i := range t.steps {
				if err := w.stores.Exchanges.AppendHistory(ctx, &t.steps[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			w.logger.Info("exchange version conflict",
				zap.Int64("tenant_id", tenantID),
				zap.Int64("exchange_id", exchangeID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		w.announce(ctx, t.ex, t.steps)
		return t.ex, nil
	}
	span.SetAttributes(attribute.Bool("conflict", true))
	return nil, apperr.ErrConcurrencyConflict
}

// announce logs, counts and publishes each status change after commit.
func (w *Workflow) announce(ctx context.Context, ex *models.ExchangeRequest, steps []models.ExchangeHistoryEntry) {
	for _, s := range steps {
		if s.NewStatus == nil {
			continue
		}
		from := ""
		if s.OldStatus != nil {
			from = string(*s.OldStatus)
		}
		to := string(*s.NewStatus)

		w.logger.Info("exchange transition",
			zap.Int64("tenant_id", ex.TenantID),
			zap.Int64("exchange_id", ex.ID),
			zap.String("from", from),
			zap.String("to", to),
			zap.String("actor_role", string(s.ActorRole)))
		w.opts.metrics.IncTransition(from, to)

		ev := audit.Event{
			Type:       audit.EventExchangeTransition,
			TenantID:   ex.TenantID,
			ActorID:    s.ActorID,
			SubjectID:  ex.ID,
			Reason:     s.Action,
			Details:    map[string]any{"from": from, "to": to},
			OccurredAt: s.CreatedAt,
		}
		w.opts.audit.Publish(ctx, ev)
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func clampHours(h, requested float64) float64 {
	lo := requested * (1 - maxHourVariance)
	hi := requested * (1 + maxHourVariance)
	return math.Max(lo, math.Min(hi, h))
}

func resolvedHours(ex *models.ExchangeRequest, hours *float64) float64 {
	if hours != nil {
		return *hours
	}
	switch {
	case ex.RequesterConfirmedHours != nil && ex.ProviderConfirmedHours != nil:
		return (*ex.RequesterConfirmedHours + *ex.ProviderConfirmedHours) / 2
	case ex.RequesterConfirmedHours != nil:
		return *ex.RequesterConfirmedHours
	case ex.ProviderConfirmedHours != nil:
		return *ex.ProviderConfirmedHours
	}
	return ex.HoursRequested
}
