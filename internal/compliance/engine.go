// Package compliance implements the broker oversight core for messages: the
// copy trigger engine, the review queue, member monitoring, the risk tag
// registry and the dashboard counts.
package compliance

import (
	"context"
	"errors"
	"fmt"
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
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EngineStores are the repositories the trigger engine reads and writes.
type EngineStores struct {
	Tx        repository.Transactor
	Policies  repository.PolicyReader
	RiskTags  repository.RiskTagRepository
	Contacts  repository.ContactRepository
	Messages  repository.MessageRepository
	Copies    repository.CopyRepository
	Exchanges repository.ExchangeRepository
}

// Engine decides, for every outbound member message, whether the broker
// gets a copy and why.
type Engine struct {
	stores EngineStores
	guard  *tenancy.Guard
	logger *zap.Logger
	opts   options
}

func NewEngine(stores EngineStores, guard *tenancy.Guard, logger *zap.Logger, opts ...Option) *Engine {
	return &Engine{stores: stores, guard: guard, logger: logger, opts: buildOptions(opts)}
}

type SendInput struct {
	SenderID   int64
	ReceiverID int64
	Body       string
	ListingID  *int64
}

// SendResult is what a send produced. Decision and Copy are for broker-side
// callers only; the sender never learns whether the message was copied.
type SendResult struct {
	Message  *models.DirectMessage
	Decision Decision
	Copy     *models.MessageCopy
}

// parties is what admit resolved for one send.
type parties struct {
	sender      *models.Member
	senderMon   *models.UserMonitoring
	receiverMon *models.UserMonitoring
	tag         *models.RiskTag
}

// Send delivers a direct message. The message, the pair history and any
// broker copy are written in one transaction; a refused send writes nothing.
func (e *Engine) Send(ctx context.Context, tenantID int64, in SendInput) (*SendResult, error) {
	ctx, span := observ.Tracer().Start(ctx, "compliance.Send", trace.WithAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Int64("sender_id", in.SenderID),
		attribute.Int64("receiver_id", in.ReceiverID),
	))
	defer span.End()

	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperr.Validation("body is required")
	}

	cfg, err := e.stores.Policies.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var (
		res *SendResult
		p   *parties
	)
	err = e.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = e.admit(ctx, tenantID, cfg, in.SenderID, in.ReceiverID, in.ListingID, false)
		if err != nil {
			return err
		}

		msg, err := e.stores.Messages.Create(ctx, &models.DirectMessage{
			TenantID:   tenantID,
			SenderID:   in.SenderID,
			ReceiverID: in.ReceiverID,
			Body:       body,
			ListingID:  in.ListingID,
			CreatedAt:  e.opts.now(),
		})
		if err != nil {
			return err
		}

		dec, cp, err := e.capture(ctx, tenantID, cfg, msg, p)
		if err != nil {
			return err
		}
		res = &SendResult{Message: msg, Decision: dec, Copy: cp}
		return nil
	})
	if err != nil {
		e.refused(ctx, span, tenantID, in.SenderID, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("copy.rule", res.Decision.Rule))
	e.announce(ctx, tenantID, cfg, res.Message, res.Decision, res.Copy, p)
	return res, nil
}

// Evaluate answers what Send would decide for msg without writing anything:
// no message, pair history, monitoring record or copy. Brokers use it to try
// a policy. A pair that already has history is never a first contact, and
// msg.CreatedAt, when set, is the instant the new-member window is measured
// against.
func (e *Engine) Evaluate(ctx context.Context, tenantID int64, msg *models.DirectMessage) (Decision, error) {
	ctx, span := observ.Tracer().Start(ctx, "compliance.Evaluate", trace.WithAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Int64("sender_id", msg.SenderID),
		attribute.Int64("receiver_id", msg.ReceiverID),
	))
	defer span.End()

	cfg, err := e.stores.Policies.Load(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}

	p, err := e.admit(ctx, tenantID, cfg, msg.SenderID, msg.ReceiverID, msg.ListingID, true)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			span.SetAttributes(attribute.String("refused", ae.Code))
		}
		return Decision{}, err
	}

	seen, err := e.stores.Contacts.HasHistory(ctx, tenantID, models.NewUserPair(msg.SenderID, msg.ReceiverID))
	if err != nil {
		return Decision{}, err
	}

	now := msg.CreatedAt
	if now.IsZero() {
		now = e.opts.now()
	}
	dec := e.decide(tenantID, cfg, msg, p, !seen, now)
	span.SetAttributes(attribute.String("copy.rule", dec.Rule))
	return dec, nil
}

// admit resolves both parties and the listing and applies every rule that
// can refuse the send. Its only write is creating the sender's monitoring
// record, and dryRun skips that too.
func (e *Engine) admit(ctx context.Context, tenantID int64, cfg policy.Config, senderID, receiverID int64, listingID *int64, dryRun bool) (*parties, error) {
	sender, err := e.guard.Member(ctx, tenantID, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := e.guard.Member(ctx, tenantID, receiverID); err != nil {
		return nil, err
	}
	if senderID == receiverID {
		return nil, apperr.Validation("sender and receiver must differ")
	}

	p := &parties{sender: sender}
	if listingID != nil {
		if _, err := e.guard.Listing(ctx, tenantID, *listingID); err != nil {
			return nil, err
		}
		if p.tag, err = e.stores.RiskTags.Get(ctx, tenantID, *listingID); err != nil {
			return nil, err
		}
	}

	if dryRun {
		if p.senderMon, err = e.stores.Contacts.GetMonitoring(ctx, tenantID, senderID); err != nil {
			return nil, err
		}
		if p.senderMon == nil {
			p.senderMon = &models.UserMonitoring{TenantID: tenantID, UserID: senderID, JoinedAt: sender.CreatedAt}
		}
	} else if p.senderMon, err = e.stores.Contacts.EnsureMonitoring(ctx, tenantID, senderID, sender.CreatedAt); err != nil {
		return nil, err
	}
	if p.senderMon.MessagingDisabled {
		return nil, apperr.ErrMessagingRestricted
	}
	if !cfg.Messaging.DirectMessagingEnabled {
		return nil, apperr.ErrDirectMessagingDisabled
	}
	if cfg.Messaging.RequireExchangeForListings && listingID != nil {
		ok, err := e.stores.Exchanges.ExistsForListing(ctx, tenantID, *listingID, models.NewUserPair(senderID, receiverID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrExchangeRequired
		}
	}

	if p.receiverMon, err = e.stores.Contacts.GetMonitoring(ctx, tenantID, receiverID); err != nil {
		return nil, err
	}
	return p, nil
}

// capture marks the pair, runs the rule chain and stores the copy. The pair
// is marked even when broker visibility is off.
func (e *Engine) capture(ctx context.Context, tenantID int64, cfg policy.Config, msg *models.DirectMessage, p *parties) (Decision, *models.MessageCopy, error) {
	first, err := e.stores.Contacts.MarkPair(ctx, tenantID, models.NewUserPair(msg.SenderID, msg.ReceiverID), msg.ID)
	if err != nil {
		return Decision{}, nil, err
	}

	now := e.opts.now()
	dec := e.decide(tenantID, cfg, msg, p, first, now)
	if !dec.Copy {
		return dec, nil, nil
	}

	var messageID *int64
	if msg.ID != 0 {
		messageID = &msg.ID
	}
	cp, err := e.stores.Copies.Create(ctx, &models.MessageCopy{
		TenantID:         tenantID,
		MessageID:        messageID,
		SenderID:         msg.SenderID,
		ReceiverID:       msg.ReceiverID,
		MessageBody:      msg.Body,
		CopyReason:       dec.Reason,
		RelatedListingID: msg.ListingID,
		CreatedAt:        now,
	})
	if err != nil {
		return Decision{}, nil, fmt.Errorf("store broker copy: %w", err)
	}
	return dec, cp, nil
}

func (e *Engine) decide(tenantID int64, cfg policy.Config, msg *models.DirectMessage, p *parties, first bool, now time.Time) Decision {
	facts := Facts{
		Now:             now,
		FirstContact:    first,
		SenderJoinedAt:  p.senderMon.JoinedAt,
		SenderMonitored: p.senderMon.UnderMonitoring,
		SenderFlagged:   p.senderMon.IsFlagged(),
		ReceiverFlagged: p.receiverMon.IsFlagged(),
		Sample:          e.opts.sample(),
	}
	if p.tag != nil {
		level := p.tag.RiskLevel
		facts.ListingRisk = &level
	}

	dec := Decide(facts, cfg)
	e.logger.Debug("copy decision",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("sender_id", msg.SenderID),
		zap.Int64("receiver_id", msg.ReceiverID),
		zap.String("rule", dec.Rule),
		zap.String("copy_reason", string(dec.Reason)),
	)
	return dec
}

// announce runs after commit: metrics and audit events never describe a
// write that was rolled back.
func (e *Engine) announce(ctx context.Context, tenantID int64, cfg policy.Config, msg *models.DirectMessage, dec Decision, cp *models.MessageCopy, p *parties) {
	if dec.Copy {
		e.opts.metrics.IncCopyDecision(string(dec.Reason))
		e.opts.audit.Publish(ctx, audit.Event{
			Type:      audit.EventMessageCopied,
			TenantID:  tenantID,
			ActorID:   &msg.SenderID,
			SubjectID: cp.ID,
			Reason:    string(dec.Reason),
			Details: map[string]any{
				"rule":        dec.Rule,
				"receiver_id": msg.ReceiverID,
			},
			OccurredAt: cp.CreatedAt,
		})
	} else {
		e.opts.metrics.IncCopyDecision("none")
	}

	if p.tag != nil && p.tag.RiskLevel.IsHigh() && cfg.RiskTagging.NotifyOnHighRiskMatch {
		e.opts.audit.Publish(ctx, audit.Event{
			Type:       audit.EventHighRiskMatch,
			TenantID:   tenantID,
			ActorID:    &msg.SenderID,
			SubjectID:  p.tag.ListingID,
			Reason:     string(p.tag.RiskLevel),
			Details:    map[string]any{"source": "message"},
			OccurredAt: e.opts.now(),
		})
	}
}

func (e *Engine) refused(ctx context.Context, span trace.Span, tenantID, senderID int64, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		e.logger.Error("message send failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return
	}

	span.SetAttributes(attribute.String("refused", ae.Code))
	e.opts.metrics.IncSendRejected(ae.Code)
	if ae.Kind == apperr.KindPolicyViolation {
		e.opts.audit.Publish(ctx, audit.Event{
			Type:       audit.EventMessageRejected,
			TenantID:   tenantID,
			ActorID:    &senderID,
			SubjectID:  senderID,
			Reason:     ae.Code,
			OccurredAt: e.opts.now(),
		})
	}
}
