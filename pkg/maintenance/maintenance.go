// Package maintenance runs the scheduled housekeeping jobs: pruning old
// login attempts and audit events, and sweeping expired in-process limiter
// buckets.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/andobill/pkg/observability"
)

// AttemptPruner deletes login attempts older than a cutoff
type AttemptPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// AuditCleaner deletes audit events older than a cutoff
type AuditCleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper drops expired limiter state
type Sweeper interface {
	Sweep() int
}

// Config holds the schedules and retention periods
type Config struct {
	PruneSchedule    string
	SweepSchedule    string
	AttemptRetention time.Duration
	AuditRetention   time.Duration
}

// Scheduler owns the cron runner
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	attempts AttemptPruner
	audit    AuditCleaner
	sweeper  Sweeper
	logger   *observability.Logger
	now      func() time.Time
	timeout  time.Duration
}

// NewScheduler creates a scheduler. audit and sweeper may be nil; their jobs
// are then not registered.
func NewScheduler(cfg Config, attempts AttemptPruner, audit AuditCleaner, sweeper Sweeper, logger *observability.Logger) *Scheduler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		cfg:      cfg,
		attempts: attempts,
		audit:    audit,
		sweeper:  sweeper,
		logger:   logger.WithField("component", "maintenance"),
		now:      time.Now,
		timeout:  5 * time.Minute,
	}
}

// Register adds the jobs to the cron runner
func (s *Scheduler) Register() error {
	if _, err := s.cron.AddFunc(s.cfg.PruneSchedule, func() { s.PruneAttempts(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule attempt pruning: %w", err)
	}
	if s.audit != nil && s.cfg.AuditRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.PruneSchedule, func() { s.CleanupAudit(context.Background()) }); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup: %w", err)
		}
	}
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.SweepLimiter); err != nil {
			return fmt.Errorf("failed to schedule limiter sweep: %w", err)
		}
	}
	return nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(map[string]interface{}{
		"prune_schedule": s.cfg.PruneSchedule,
		"sweep_schedule": s.cfg.SweepSchedule,
		"jobs":           len(s.cron.Entries()),
	}).Info("maintenance scheduler started")
}

// Stop stops the scheduler and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PruneAttempts deletes login attempts older than the retention period
func (s *Scheduler) PruneAttempts(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.AttemptRetention)
	n, err := s.attempts.Prune(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("login attempt pruning failed")
		return
	}
	s.logger.WithField("deleted", n).Info("login attempts pruned")
}

// CleanupAudit deletes audit events older than the retention period
func (s *Scheduler) CleanupAudit(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.audit.Cleanup(ctx, s.now().Add(-s.cfg.AuditRetention))
	if err != nil {
		s.logger.WithError(err).Error("audit cleanup failed")
		return
	}
	s.logger.WithField("deleted", n).Info("audit events cleaned up")
}

// SweepLimiter drops expired in-process limiter buckets
func (s *Scheduler) SweepLimiter() {
	if n := s.sweeper.Sweep(); n > 0 {
		s.logger.WithField("swept", n).Debug("limiter buckets swept")
	}
}
