// Package scheduler runs the time range import and the outdating sweep on
// a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hive-corporation/actionables/internal/core/importer"
	"github.com/hive-corporation/actionables/internal/core/outdating"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const lockName = "scheduled-import"

// RangeImporter imports the reports created in [from, to).
type RangeImporter interface {
	ImportRange(ctx context.Context, from, to time.Time) (importer.Summary, error)
}

// SweepRunner runs an outdating sweep.
type SweepRunner interface {
	Run(ctx context.Context, store ports.Store, opts outdating.Options) (outdating.Report, error)
}

// Config defines when and how scheduled runs happen.
type Config struct {
	Schedule   string        // standard five field cron expression
	Lookback   time.Duration // window of the first run
	LockTTL    time.Duration
	SystemUser string
	// Sweep runs a full commit-mode sweep after each successful import.
	Sweep bool
}

// Scheduler imports the window since its previous successful run on
// every cron tick.
type Scheduler struct {
	cron     *cron.Cron
	importer RangeImporter
	sweeper  SweepRunner
	store    ports.Store
	lock     ports.JobLock
	cfg      Config
	log      *zap.Logger

	mu sync.Mutex
	// from is the start of the next window. It is pinned on the first
	// attempt and only moves when reports up to a point are imported.
	from time.Time
	now  func() time.Time
}

func New(im RangeImporter, sw SweepRunner, store ports.Store, lock ports.JobLock, cfg Config, log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()}))),
		importer: im,
		sweeper:  sw,
		store:    store,
		lock:     lock,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("add cron schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timeout")
		return ctx.Err()
	}
}

// RunOnce imports the pending window and sweeps. It does nothing when
// another replica holds the job lock. The window only closes up to the
// oldest report that failed, so failed reports are retried next time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	release, ok, err := s.lock.Acquire(ctx, lockName, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		s.log.Info("another run holds the job lock, skipping")
		return nil
	}
	defer release()

	from, to := s.window()
	summary, err := s.importer.ImportRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("import %s..%s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}

	next := to
	if summary.Failed > 0 {
		next = summary.FailedSince
		s.log.Warn("reports failed, window kept open",
			zap.Int("failed", summary.Failed),
			zap.Time("from", next))
	}
	s.advance(from, next)

	s.log.Info("scheduled import finished",
		zap.String("run_id", summary.RunID),
		zap.Int("reports", summary.Reports),
		zap.Int("failed", summary.Failed),
		zap.Int("indicators_created", summary.IndicatorsCreated))

	if !s.cfg.Sweep {
		return nil
	}
	rep, err := s.sweeper.Run(ctx, s.store, outdating.Options{User: s.cfg.SystemUser})
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	s.log.Info("scheduled sweep finished",
		zap.Int("outdated_sources", len(rep.Outdated)),
		zap.Int("indicators", rep.Indicators))
	return nil
}

// window is [pending start, now). The first call pins the start at the
// configured lookback.
func (s *Scheduler) window() (time.Time, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	to := s.now()
	if s.from.IsZero() {
		s.from = to.Add(-s.cfg.Lookback)
	}
	return s.from, to
}

// advance moves the window start forward to next. A zero or earlier next
// keeps it where it is.
func (s *Scheduler) advance(from, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.After(from) {
		s.from = next
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
