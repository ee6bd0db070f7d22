package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"estate_sync/internal/config"
	"estate_sync/internal/domain"
	"estate_sync/internal/location"
)

// ListingSyncService reconciles the local listing cache with the upstream
// manifest.
type ListingSyncService struct {
	source    Source
	listings  ListingStore
	images    ImageStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	mapper    *ListingMapper
	logger    *slog.Logger
	config    config.SyncConfig
}

// NewListingSyncService wires the reconciler. publisher may be nil.
func NewListingSyncService(
	source Source,
	listings ListingStore,
	images ImageStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	mapper *ListingMapper,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *ListingSyncService {
	return &ListingSyncService{
		source:    source,
		listings:  listings,
		images:    images,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		mapper:    mapper,
		logger:    logger.With("source", source.ID(), "sync", "listings"),
		config:    cfg,
	}
}

// Sync runs one reconciliation. Only failures that make the whole run
// meaningless are returned; per-listing failures are counted in the report.
// On context cancellation the partial report is returned with the error.
func (s *ListingSyncService) Sync(ctx context.Context) (*domain.ListingSyncReport, error) {
	startTime := time.Now()
	report := &domain.ListingSyncReport{
		RunID:         uuid.NewString(),
		DistrictTable: location.TableVersion(),
	}
	logger := s.logger.With("run_id", report.RunID)

	logger.Info("starting listing sync",
		"source_name", s.source.Name(),
		"district_table", report.DistrictTable,
	)

	manifest, err := s.source.ListExportedListingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	report.Fetched = len(manifest)
	logger.Info("fetched manifest", "count", len(manifest))

	if err := s.archiveMissing(ctx, logger, manifest, report); err != nil {
		return nil, fmt.Errorf("archive missing listings: %w", err)
	}

	states, err := s.listings.GetSyncStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local sync states: %w", err)
	}

	var lastID int64
	for _, entry := range manifest {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(startTime)
			return report, err
		}

		local, exists := states[entry.ExternalID]
		if exists && !entry.LastUpdated.After(local) {
			report.Skipped++
			continue
		}

		if err := s.syncOne(ctx, logger, entry, report); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.Duration = time.Since(startTime)
				return report, ctxErr
			}
			report.Errors++
			logger.Error("failed to sync listing",
				"external_id", entry.ExternalID,
				"error", err,
			)
			continue
		}
		lastID = entry.ExternalID
	}

	if err := s.updateSyncState(ctx, report, lastID); err != nil {
		report.Duration = time.Since(startTime)
		return report, fmt.Errorf("update sync state: %w", err)
	}

	report.Duration = time.Since(startTime)

	logger.Info("listing sync completed",
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"archived", report.Archived,
		"errors", report.Errors,
		"unknown_status", report.UnknownStatus,
		"published", report.Published,
		"duration", report.Duration,
	)

	return report, nil
}

func (s *ListingSyncService) archiveMissing(ctx context.Context, logger *slog.Logger, manifest []domain.ManifestEntry, report *domain.ListingSyncReport) error {
	if len(manifest) == 0 && !s.config.ArchiveOnEmptyManifest {
		logger.Warn("empty manifest, skipping archive pass")
		return nil
	}

	keep := make([]int64, len(manifest))
	for i, e := range manifest {
		keep[i] = e.ExternalID
	}

	archived, err := s.listings.ArchiveMissing(ctx, keep)
	if err != nil {
		return err
	}
	report.Archived = len(archived)
	if len(archived) > 0 {
		logger.Info("archived listings missing upstream", "count", len(archived))
	}

	for _, id := range archived {
		s.publish(ctx, logger, domain.ListingEvent{
			Action:     domain.ListingArchived,
			ExternalID: id,
		}, report)
	}
	return nil
}

func (s *ListingSyncService) syncOne(ctx context.Context, logger *slog.Logger, entry domain.ManifestEntry, report *domain.ListingSyncReport) error {
	if s.config.DetailDelay > 0 {
		if err := sleepCtx(ctx, s.config.DetailDelay); err != nil {
			return err
		}
	}

	detail, err := s.source.GetListingDetail(ctx, entry.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}

	listing, statusKnown, err := s.mapper.Map(detail, entry)
	if err != nil {
		return fmt.Errorf("map detail: %w", err)
	}

	var created bool
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, isNew, err := s.listings.Upsert(txCtx, listing)
		if err != nil {
			return fmt.Errorf("upsert listing: %w", err)
		}
		listing.ID = id
		created = isNew

		if err := s.images.ReplaceForListing(txCtx, id, listing.Images); err != nil {
			return fmt.Errorf("replace images: %w", err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrStaleListing) {
		report.Skipped++
		logger.Warn("stored listing is newer than upstream, left unchanged",
			"external_id", entry.ExternalID,
			"manifest_last_updated", entry.LastUpdated,
		)
		return nil
	}
	if err != nil {
		return err
	}

	if !statusKnown {
		report.UnknownStatus++
	}

	action := domain.ListingUpdated
	if created {
		report.Created++
		action = domain.ListingCreated
	} else {
		report.Updated++
	}

	logger.Debug("synced listing",
		"external_id", entry.ExternalID,
		"action", action,
		"district", listing.District,
		"images", len(listing.Images),
	)

	s.publish(ctx, logger, domain.ListingEvent{
		Action:     action,
		ExternalID: listing.ExternalID,
		Listing:    listing,
	}, report)

	return nil
}

// publish logs failures instead of counting them as errors.
func (s *ListingSyncService) publish(ctx context.Context, logger *slog.Logger, event domain.ListingEvent, report *domain.ListingSyncReport) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish listing event",
			"external_id", event.ExternalID,
			"action", event.Action,
			"error", err,
		)
		return
	}
	report.Published++
}

func (s *ListingSyncService) updateSyncState(ctx context.Context, report *domain.ListingSyncReport, lastID int64) error {
	state, err := s.syncState.Get(ctx, domain.SyncSourceListings)
	if err != nil {
		return err
	}

	state.SourceID = domain.SyncSourceListings
	state.LastSyncedAt = time.Now()
	if lastID != 0 {
		state.LastExternalID = lastID
	}
	state.TotalSynced += int64(report.Created + report.Updated)

	return s.syncState.Update(ctx, state)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
