package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"estate_sync/internal/domain"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// Runner serializes sync runs. A run that finds another one in progress,
// in this process or in any other process sharing the lock, fails fast with
// ErrSyncInProgress instead of waiting.
type Runner struct {
	agents   AgentSyncer
	listings ListingSyncer
	store    ListingStore
	locker   Locker
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewRunner creates a runner. locker may be nil for single-process use.
func NewRunner(agents AgentSyncer, listings ListingSyncer, store ListingStore, locker Locker, logger *slog.Logger) *Runner {
	return &Runner{
		agents:   agents,
		listings: listings,
		store:    store,
		locker:   locker,
		logger:   logger.With("component", "runner"),
	}
}

func (r *Runner) SyncAgents(ctx context.Context) (*domain.AgentSyncReport, error) {
	var report *domain.AgentSyncReport
	err := r.exclusive(ctx, func(ctx context.Context) error {
		var err error
		report, err = r.agents.Sync(ctx)
		return err
	})
	return report, err
}

func (r *Runner) SyncListings(ctx context.Context) (*domain.ListingSyncReport, error) {
	var report *domain.ListingSyncReport
	err := r.exclusive(ctx, func(ctx context.Context) error {
		var err error
		report, err = r.listings.Sync(ctx)
		return err
	})
	return report, err
}

// RunAll syncs agents, then listings. A failed agent run does not prevent
// the listing run; both errors are returned joined.
func (r *Runner) RunAll(ctx context.Context) (*domain.SyncReport, error) {
	report := &domain.SyncReport{}
	err := r.exclusive(ctx, func(ctx context.Context) error {
		return r.runBoth(ctx, report)
	})
	return report, err
}

// ResetAndSync deletes every cached listing (images cascade) and then runs
// both syncs under the same lock.
func (r *Runner) ResetAndSync(ctx context.Context) (*domain.SyncReport, error) {
	report := &domain.SyncReport{}
	err := r.exclusive(ctx, func(ctx context.Context) error {
		purged, err := r.store.PurgeAll(ctx)
		if err != nil {
			return fmt.Errorf("purge listings: %w", err)
		}
		report.Purged = purged
		r.logger.Warn("purged all listings", "count", purged)

		return r.runBoth(ctx, report)
	})
	return report, err
}

func (r *Runner) runBoth(ctx context.Context, report *domain.SyncReport) error {
	var errs []error

	agents, err := r.agents.Sync(ctx)
	report.Agents = agents
	if err != nil {
		errs = append(errs, fmt.Errorf("agents: %w", err))
		if ctx.Err() != nil {
			return errors.Join(errs...)
		}
	}

	listings, err := r.listings.Sync(ctx)
	report.Listings = listings
	if err != nil {
		errs = append(errs, fmt.Errorf("listings: %w", err))
	}

	return errors.Join(errs...)
}

func (r *Runner) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer r.mu.Unlock()

	if r.locker != nil {
		unlock, ok, err := r.locker.TryLock(ctx)
		if err != nil {
			return fmt.Errorf("acquire sync lock: %w", err)
		}
		if !ok {
			return ErrSyncInProgress
		}
		defer unlock()
	}

	return fn(ctx)
}
