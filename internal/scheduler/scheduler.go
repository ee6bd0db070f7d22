package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"estate_sync/internal/domain"
	"estate_sync/internal/service"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	RunAll(ctx context.Context) (*domain.SyncReport, error)
}

type Config struct {
	Interval time.Duration
	// Cron is a standard five-field expression; it replaces Interval when set.
	Cron    string
	Timeout time.Duration
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		syncer:   syncer,
		interval: cfg.Interval,
		spec:     cfg.Cron,
		timeout:  cfg.Timeout,
		logger:   logger.With("component", "scheduler"),
	}

	if cfg.Cron != "" {
		schedule, err := cron.ParseStandard(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", cfg.Cron, err)
		}
		s.schedule = schedule
	} else if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}

	return s, nil
}

// Start runs one sync immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule != nil {
		return s.startCron(ctx)
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) startCron(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runSync(ctx) }))

	s.logger.Info("scheduler started", "cron", s.spec, "next", s.schedule.Next(time.Now()))

	s.runSync(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.syncer.RunAll(syncCtx)
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		s.logger.Info("scheduled sync skipped, another run in progress")
	case err != nil:
		s.logger.Error("sync failed", "error", err)
	default:
		s.logReport(report)
	}
}

func (s *Scheduler) logReport(report *domain.SyncReport) {
	if report == nil {
		return
	}
	attrs := []any{}
	if a := report.Agents; a != nil {
		attrs = append(attrs, slog.Group("agents",
			"fetched", a.Fetched,
			"created", a.Created,
			"updated", a.Updated,
			"deactivated", a.Deactivated,
		))
	}
	if l := report.Listings; l != nil {
		attrs = append(attrs, slog.Group("listings",
			"run_id", l.RunID,
			"created", l.Created,
			"updated", l.Updated,
			"skipped", l.Skipped,
			"archived", l.Archived,
			"errors", l.Errors,
		))
	}
	s.logger.Info("scheduled sync finished", attrs...)
}
