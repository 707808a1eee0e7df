// Package sweeper runs the periodic maintenance pass over every tenant:
// overdue exchanges expire and broker copies past retention are purged.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/observ"
	"github.com/lalith-99/brokerguard/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Expirer moves overdue exchanges of one tenant to expired.
type Expirer interface {
	ExpireDue(ctx context.Context, tenantID int64, now time.Time) (int, error)
}

type Config struct {
	Interval time.Duration
	// Concurrency bounds how many tenants are swept at once.
	Concurrency int
}

type Sweeper struct {
	tenants  repository.TenantRepository
	policies repository.PolicyReader
	copies   repository.CopyRepository
	expirer  Expirer
	cfg      Config
	now      func() time.Time
	audit    audit.Publisher
	metrics  *observ.Metrics
	logger   *zap.Logger
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithAudit(p audit.Publisher) Option {
	return func(s *Sweeper) { s.audit = p }
}

func WithMetrics(m *observ.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(
	tenants repository.TenantRepository,
	policies repository.PolicyReader,
	copies repository.CopyRepository,
	expirer Expirer,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	s := &Sweeper{
		tenants:  tenants,
		policies: policies,
		copies:   copies,
		expirer:  expirer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		audit:    audit.Nop{},
		logger:   logger.Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes one pass.
type Result struct {
	RunID    string
	Tenants  int
	Expired  int
	Purged   int64
	Failures int
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", zap.Duration("interval", s.cfg.Interval))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps every tenant. A failing tenant is logged and counted; it
// does not stop the others. Only a failure to list tenants is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	ctx, span := observ.Tracer().Start(ctx, "sweeper.RunOnce", trace.WithAttributes(
		attribute.String("run_id", runID),
	))
	defer span.End()

	start := time.Now()
	res := Result{RunID: runID}
	ids, err := s.tenants.ListIDs(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("list tenants: %w", err)
	}
	res.Tenants = len(ids)

	results := make([]tenantResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = s.sweepTenant(gctx, runID, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		res.Expired += r.expired
		res.Purged += r.purged
		if r.err != nil {
			res.Failures++
		}
	}
	span.SetAttributes(
		attribute.Int("tenants", res.Tenants),
		attribute.Int("expired", res.Expired),
		attribute.Int64("purged", res.Purged),
	)
	s.logger.Info("sweep complete",
		zap.String("run_id", runID),
		zap.Int("tenants", res.Tenants),
		zap.Int("expired", res.Expired),
		zap.Int64("purged", res.Purged),
		zap.Int("failures", res.Failures),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

type tenantResult struct {
	expired int
	purged  int64
	err     error
}

func (s *Sweeper) sweepTenant(ctx context.Context, runID string, tenantID int64) tenantResult {
	log := observ.ForTenant(s.logger, tenantID).With(zap.String("run_id", runID))
	now := s.now()
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	cfg, err := s.policies.Load(ctx, tenantID)
	if err != nil {
		log.Error("load broker config", zap.Error(err))
		return tenantResult{err: err}
	}

	var r tenantResult
	if r.expired, err = s.expirer.ExpireDue(ctx, tenantID, now); err != nil {
		log.Error("expire exchanges", zap.Error(err))
		r.err = err
	}

	cutoff := now.Add(-cfg.RetentionWindow())
	purged, err := s.copies.DeleteExpired(ctx, tenantID, cutoff)
	if err != nil {
		log.Error("purge broker copies", zap.Error(err))
		r.err = errors.Join(r.err, err)
		return r
	}
	r.purged = purged
	if purged > 0 {
		s.metrics.AddRetentionDeleted(purged)
		s.audit.Publish(ctx, audit.Event{
			Type:       audit.EventRetentionPurged,
			TenantID:   tenantID,
			Details:    map[string]any{"count": purged, "cutoff": cutoff, "run_id": runID},
			OccurredAt: now,
		})
		log.Info("purged broker copies", zap.Int64("count", purged), zap.Time("cutoff", cutoff))
	}
	return r
}
