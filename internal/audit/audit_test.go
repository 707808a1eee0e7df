package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	events []audit.Event
}

func (r *recorder) Publish(_ context.Context, ev audit.Event) {
	r.events = append(r.events, ev)
}

func TestMultiFansOut(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	m := audit.Multi{first, nil, second}

	m.Publish(context.Background(), audit.Event{Type: audit.EventMessageCopied, TenantID: 1, SubjectID: 7})

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, first.events[0], second.events[0])
	assert.False(t, first.events[0].OccurredAt.IsZero())

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Publish(context.Background(), audit.Event{Type: audit.EventConfigChanged, TenantID: 1, OccurredAt: at})
	assert.Equal(t, at, first.events[1].OccurredAt)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := audit.NewLogPublisher(zap.New(core))

	actor := int64(900)
	p.Publish(context.Background(), audit.Event{
		Type:      audit.EventMessageFlagged,
		TenantID:  1,
		ActorID:   &actor,
		SubjectID: 42,
		Reason:    "spam",
	})
	p.Publish(context.Background(), audit.Event{Type: audit.EventTenantMismatch, TenantID: 2})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "message_flagged", fields["type"])
	assert.Equal(t, int64(900), fields["actor_id"])
	assert.Equal(t, "spam", fields["reason"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	_, hasActor := entries[1].ContextMap()["actor_id"]
	assert.False(t, hasActor)
}
