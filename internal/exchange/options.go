package exchange

import (
	"time"

	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/observ"
)

type options struct {
	now     func() time.Time
	audit   audit.Publisher
	metrics *observ.Metrics
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithAudit(p audit.Publisher) Option {
	return func(o *options) { o.audit = p }
}

func WithMetrics(m *observ.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
