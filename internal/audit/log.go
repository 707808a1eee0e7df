package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes every event to the process log under the "audit"
// logger name.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("audit")}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.Int64("tenant_id", ev.TenantID),
		zap.Int64("subject_id", ev.SubjectID),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.ActorID != nil {
		fields = append(fields, zap.Int64("actor_id", *ev.ActorID))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("details", ev.Details))
	}

	if ev.Type == EventTenantMismatch {
		p.logger.Warn("audit event", fields...)
		return
	}
	p.logger.Info("audit event", fields...)
}
