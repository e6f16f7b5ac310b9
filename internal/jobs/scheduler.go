package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/repository"
)

const (
	jobPurgeResets     = "purge_password_resets"
	jobPurgeRecoveries = "purge_recovery_tokens"
	jobTimeout         = 30 * time.Second
)

// Scheduler runs periodic maintenance of the recovery ledger.
type Scheduler struct {
	cron       *cron.Cron
	resets     repository.PasswordResetRepository
	recoveries repository.AccountRecoveryRepository
	metrics    *observability.Metrics
	log        *zap.Logger
	now        func() time.Time
}

// NewScheduler builds a scheduler using a six-field (seconds) cron spec.
func NewScheduler(resets repository.PasswordResetRepository, recoveries repository.AccountRecoveryRepository, metrics *observability.Metrics, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		resets:     resets,
		recoveries: recoveries,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// Start registers the purge job on schedule and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.PurgeExpired); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("maintenance scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("maintenance job still running at shutdown")
	}
}

// PurgeExpired removes expired reset grants and clears expired recovery
// tokens.
func (s *Scheduler) PurgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	now := s.now()

	s.run(ctx, jobPurgeResets, func(ctx context.Context) (int64, error) {
		return s.resets.PurgeExpired(ctx, now)
	})
	s.run(ctx, jobPurgeRecoveries, func(ctx context.Context) (int64, error) {
		return s.recoveries.PurgeExpired(ctx, now)
	})
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	n, err := fn(ctx)
	s.metrics.RecordJob(name, err == nil)
	if err != nil {
		s.log.Error("maintenance job failed", zap.String("job", name), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("maintenance job finished", zap.String("job", name), zap.Int64("purged", n))
	}
}
