package compliance

import (
	"math/rand/v2"
	"time"

	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/observ"
)

type options struct {
	now     func() time.Time
	sample  func() float64
	audit   audit.Publisher
	metrics *observ.Metrics
}

type Option func(*options)

// WithClock replaces time.Now. Tests use it to pin join-window math.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSampler replaces the random-sample draw. fn must return a value in
// [0,100).
func WithSampler(fn func() float64) Option {
	return func(o *options) { o.sample = fn }
}

func WithAudit(p audit.Publisher) Option {
	return func(o *options) { o.audit = p }
}

func WithMetrics(m *observ.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		sample: func() float64 { return rand.Float64() * 100 },
		audit:  audit.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
