package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"estate_sync/internal/domain"
	"estate_sync/internal/source/asari"
)

type ListingStore interface {
	// Upsert writes the listing keyed by external id and reports whether the
	// row was inserted. It returns domain.ErrStaleListing, writing nothing,
	// when the stored row is newer.
	Upsert(ctx context.Context, listing *domain.Listing) (id int64, created bool, err error)
	// GetSyncStates returns external id -> stored upstream timestamp for
	// every listing that is not archived.
	GetSyncStates(ctx context.Context) (map[int64]time.Time, error)
	// ArchiveMissing archives every non-archived listing whose external id
	// is not in keep and returns the archived external ids.
	ArchiveMissing(ctx context.Context, keep []int64) ([]int64, error)
	PurgeAll(ctx context.Context) (int64, error)
}

type ImageStore interface {
	ReplaceForListing(ctx context.Context, listingID int64, images []domain.ListingImage) error
}

type AgentStore interface {
	Upsert(ctx context.Context, agent *domain.Agent) (created bool, err error)
	DeactivateMissing(ctx context.Context, keep []int64) (int64, error)
	// SlugOwner returns the external id of the stored agent holding slug.
	SlugOwner(ctx context.Context, slug string) (externalID int64, found bool, err error)
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Source interface {
	ID() string
	Name() string
	ListExportedListingIDs(ctx context.Context) ([]domain.ManifestEntry, error)
	GetListingDetail(ctx context.Context, id int64) (*asari.Listing, error)
	ListAgents(ctx context.Context) ([]asari.Agent, error)
	ImageURLs(imageID int64) (thumbnail, normal, original string)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event domain.ListingEvent) error
	Close() error
}

// Locker guards a whole sync run across processes. TryLock returns
// ok=false without error when another holder has the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

type AgentSyncer interface {
	Sync(ctx context.Context) (*domain.AgentSyncReport, error)
}

type ListingSyncer interface {
	Sync(ctx context.Context) (*domain.ListingSyncReport, error)
}
