// Package audit carries compliance events out of the core. Publishing is
// best-effort: a sink failure is logged and counted, never returned to the
// operation that produced the event.
package audit

import (
	"context"
	"time"
)

type EventType string

const (
	EventMessageCopied      EventType = "message_copied"
	EventMessageRejected    EventType = "message_rejected"
	EventMessageReviewed    EventType = "message_reviewed"
	EventMessageFlagged     EventType = "message_flagged"
	EventHighRiskMatch      EventType = "high_risk_match"
	EventExchangeTransition EventType = "exchange_transition"
	EventMonitoringChanged  EventType = "monitoring_changed"
	EventRiskTagChanged     EventType = "risk_tag_changed"
	EventConfigChanged      EventType = "config_changed"
	EventTenantMismatch     EventType = "tenant_mismatch"
	EventRetentionPurged    EventType = "retention_purged"
)

// Event is one audit record. SubjectID identifies the copy, exchange,
// listing or member the event is about; its meaning depends on Type.
type Event struct {
	Type       EventType      `json:"type"`
	TenantID   int64          `json:"tenant_id"`
	ActorID    *int64         `json:"actor_id,omitempty"`
	SubjectID  int64          `json:"subject_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Multi fans an event out to every sink in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
