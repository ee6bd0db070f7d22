//go:build integration

package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"estate_sync/internal/config"
	"estate_sync/internal/domain"
	"estate_sync/internal/service"
	"estate_sync/internal/source/asari"
	"estate_sync/internal/testutil"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_listings.up.sql"),
			filepath.Join(migrationsPath, "002_create_agents.up.sql"),
			filepath.Join(migrationsPath, "003_create_sync_state.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM listing_images")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM listings")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM agents")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func newListing(externalID int64, lastUpdated time.Time) *domain.Listing {
	return &domain.Listing{
		ExternalID:          externalID,
		ListingNumber:       "MS-1",
		ExternalLastUpdated: lastUpdated,
		Status:              domain.ListingStatusActive,
		PropertyType:        domain.PropertyApartment,
		TransactionType:     domain.TransactionSale,
		Title:               "Mieszkanie",
		Price:               testutil.Ptr(450000.0),
		Currency:            "PLN",
		Area:                testutil.Ptr(54.5),
		Rooms:               testutil.Ptr(3),
		City:                testutil.Ptr("Częstochowa"),
		District:            testutil.Ptr("Parkitka"),
		Street:              testutil.Ptr("Aleja Wolności"),
		HouseNumber:         testutil.Ptr("51a"),
		Geohash:             testutil.Ptr("u2wk0bc"),
		Details:             &domain.ApartmentDetails{Balcony: testutil.Ptr(true), YearBuilt: testutil.Ptr(1978)},
		UpstreamCreatedAt:   lastUpdated.Add(-24 * time.Hour),
		UpstreamUpdatedAt:   lastUpdated,
	}
}

func (s *PostgresIntegrationSuite) TestListingStore_Upsert_InsertThenUpdate() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	listing := newListing(9760309, now.Add(-time.Hour))
	id1, created, err := store.Upsert(s.ctx, listing)
	s.Require().NoError(err)
	s.True(created)
	s.Greater(id1, int64(0))

	listing.Title = "Mieszkanie po remoncie"
	listing.ExternalLastUpdated = now
	id2, created, err := store.Upsert(s.ctx, listing)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(id1, id2)

	got, err := store.GetByExternalID(s.ctx, 9760309)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("Mieszkanie po remoncie", got.Title)
	s.True(now.Equal(got.ExternalLastUpdated))
	s.Equal(domain.TransactionSale, got.TransactionType)
	s.Equal(450000.0, *got.Price)

	details, ok := got.Details.(*domain.ApartmentDetails)
	s.Require().True(ok)
	s.True(*details.Balcony)
	s.Equal(1978, *details.YearBuilt)
}

func (s *PostgresIntegrationSuite) TestListingStore_Upsert_KeepsNewerStoredRow() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	listing := newListing(1, now)
	id1, _, err := store.Upsert(s.ctx, listing)
	s.Require().NoError(err)

	listing.Title = "Older"
	listing.ExternalLastUpdated = now.Add(-time.Hour)
	id2, created, err := store.Upsert(s.ctx, listing)
	s.ErrorIs(err, domain.ErrStaleListing)
	s.False(created)
	s.Zero(id2)

	var title string
	s.Require().NoError(s.db.GetContext(s.ctx, &title, "SELECT title FROM listings WHERE id = $1", id1))
	s.Equal("Mieszkanie", title)
}

func (s *PostgresIntegrationSuite) TestListingStore_Upsert_RestoresArchivedRowWithOlderTimestamp() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	listing := newListing(1, now)
	id1, _, err := store.Upsert(s.ctx, listing)
	s.Require().NoError(err)

	archived, err := store.ArchiveMissing(s.ctx, []int64{})
	s.Require().NoError(err)
	s.Equal([]int64{1}, archived)

	states, err := store.GetSyncStates(s.ctx)
	s.Require().NoError(err)
	s.NotContains(states, int64(1))

	listing.Title = "Wraca do oferty"
	listing.ExternalLastUpdated = now.Add(-time.Hour)
	id2, created, err := store.Upsert(s.ctx, listing)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(id1, id2)

	got, err := store.GetByExternalID(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(domain.ListingStatusActive, got.Status)
	s.Equal("Wraca do oferty", got.Title)
	s.True(now.Add(-time.Hour).Equal(got.ExternalLastUpdated))

	states, err = store.GetSyncStates(s.ctx)
	s.Require().NoError(err)
	s.Contains(states, int64(1))
}

func (s *PostgresIntegrationSuite) TestListingStore_ClosedRowsStayInSyncStates() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	closed := newListing(5, now)
	closed.Status = domain.ListingStatusClosed
	_, _, err := store.Upsert(s.ctx, closed)
	s.Require().NoError(err)

	states, err := store.GetSyncStates(s.ctx)
	s.Require().NoError(err)
	s.Require().Contains(states, int64(5))
	s.True(now.Equal(states[5]))
}

func (s *PostgresIntegrationSuite) TestListingStore_Upsert_PreservesAISummary() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	listing := newListing(1, now)
	id, _, err := store.Upsert(s.ctx, listing)
	s.Require().NoError(err)

	_, err = s.db.ExecContext(s.ctx, "UPDATE listings SET ai_summary = 'summary' WHERE id = $1", id)
	s.Require().NoError(err)

	listing.ExternalLastUpdated = now.Add(time.Hour)
	_, _, err = store.Upsert(s.ctx, listing)
	s.Require().NoError(err)

	got, err := store.GetByExternalID(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(got.AISummary)
	s.Equal("summary", *got.AISummary)
}

func (s *PostgresIntegrationSuite) TestListingStore_ArchiveMissingAndSyncStates() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	for _, id := range []int64{1, 2, 3} {
		_, _, err := store.Upsert(s.ctx, newListing(id, now))
		s.Require().NoError(err)
	}
	closed := newListing(4, now)
	closed.Status = domain.ListingStatusClosed
	_, _, err := store.Upsert(s.ctx, closed)
	s.Require().NoError(err)

	archived, err := store.ArchiveMissing(s.ctx, []int64{1, 3})
	s.Require().NoError(err)
	s.ElementsMatch([]int64{2, 4}, archived)

	archived, err = store.ArchiveMissing(s.ctx, []int64{1, 3})
	s.Require().NoError(err)
	s.Empty(archived)

	var status string
	s.Require().NoError(s.db.GetContext(s.ctx, &status, "SELECT status FROM listings WHERE external_id = 2"))
	s.Equal("archived", status)

	states, err := store.GetSyncStates(s.ctx)
	s.Require().NoError(err)
	s.Len(states, 2)
	s.Contains(states, int64(1))
	s.Contains(states, int64(3))
	s.True(now.Equal(states[1]))

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM listings"))
	s.Equal(4, count)
}

func (s *PostgresIntegrationSuite) TestListingStore_ArchiveMissing_EmptyKeepArchivesAll() {
	store := NewListingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, _, err := store.Upsert(s.ctx, newListing(1, now))
	s.Require().NoError(err)

	archived, err := store.ArchiveMissing(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal([]int64{1}, archived)
}

func (s *PostgresIntegrationSuite) TestImageStore_ReplaceForListing() {
	listings := NewListingStore(s.db)
	images := NewImageStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, _, err := listings.Upsert(s.ctx, newListing(1, now))
	s.Require().NoError(err)

	first := []domain.ListingImage{
		{ExternalID: 100, ThumbnailURL: "t/100", NormalURL: "n/100", OriginalURL: "o/100"},
		{ExternalID: 101, IsScheme: true, Description: testutil.Ptr("rzut"), ThumbnailURL: "t/101", NormalURL: "n/101", OriginalURL: "o/101"},
		{ExternalID: 102, ThumbnailURL: "t/102", NormalURL: "n/102", OriginalURL: "o/102"},
	}
	s.Require().NoError(images.ReplaceForListing(s.ctx, id, first))

	second := []domain.ListingImage{
		{ExternalID: 102, ThumbnailURL: "t/102", NormalURL: "n/102", OriginalURL: "o/102"},
		{ExternalID: 100, ThumbnailURL: "t/100", NormalURL: "n/100", OriginalURL: "o/100"},
	}
	s.Require().NoError(images.ReplaceForListing(s.ctx, id, second))

	got, err := images.ListForListing(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(int64(102), got[0].ExternalID)
	s.Equal(0, got[0].Position)
	s.Equal(int64(100), got[1].ExternalID)
	s.Equal(1, got[1].Position)

	s.Require().NoError(images.ReplaceForListing(s.ctx, id, nil))
	got, err = images.ListForListing(s.ctx, id)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PostgresIntegrationSuite) TestListingStore_PurgeAllCascadesImages() {
	listings := NewListingStore(s.db)
	images := NewImageStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, _, err := listings.Upsert(s.ctx, newListing(1, now))
	s.Require().NoError(err)
	s.Require().NoError(images.ReplaceForListing(s.ctx, id, []domain.ListingImage{
		{ExternalID: 100, ThumbnailURL: "t", NormalURL: "n", OriginalURL: "o"},
	}))

	purged, err := listings.PurgeAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM listing_images"))
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestAgentStore_UpsertAndDeactivate() {
	store := NewAgentStore(s.db)
	activity := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	anna := &domain.Agent{
		ExternalID:           11,
		FirstName:            "Anna",
		LastName:             "Nowak",
		Slug:                 "anna-nowak",
		Email:                testutil.Ptr("anna@example.com"),
		ImagePath:            "/images/agents/anna-nowak.jpg",
		IsActive:             true,
		LastActivityExternal: &activity,
	}
	jan := &domain.Agent{
		ExternalID: 12,
		FirstName:  "Jan",
		LastName:   "Kowalski",
		Slug:       "jan-kowalski",
		ImagePath:  "/images/agents/jan-kowalski.jpg",
		IsActive:   true,
	}

	created, err := store.Upsert(s.ctx, anna)
	s.Require().NoError(err)
	s.True(created)
	s.Greater(anna.ID, int64(0))

	created, err = store.Upsert(s.ctx, jan)
	s.Require().NoError(err)
	s.True(created)

	anna.Phone = testutil.Ptr("+48 600 000 000")
	created, err = store.Upsert(s.ctx, anna)
	s.Require().NoError(err)
	s.False(created)

	n, err := store.DeactivateMissing(s.ctx, []int64{11})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got, err := store.GetByExternalID(s.ctx, 12)
	s.Require().NoError(err)
	s.False(got.IsActive)

	got, err = store.GetByExternalID(s.ctx, 11)
	s.Require().NoError(err)
	s.True(got.IsActive)
	s.Equal("+48 600 000 000", *got.Phone)
	s.Require().NotNil(got.LastActivityExternal)
	s.True(activity.Equal(*got.LastActivityExternal))

	_, err = store.Upsert(s.ctx, jan)
	s.Require().NoError(err)
	got, err = store.GetByExternalID(s.ctx, 12)
	s.Require().NoError(err)
	s.True(got.IsActive)

	missing, err := store.GetByExternalID(s.ctx, 99)
	s.NoError(err)
	s.Nil(missing)
}

func (s *PostgresIntegrationSuite) TestAgentStore_SlugIsUnique() {
	store := NewAgentStore(s.db)

	_, err := store.Upsert(s.ctx, &domain.Agent{ExternalID: 1, FirstName: "A", LastName: "B", Slug: "a-b", ImagePath: "x", IsActive: true})
	s.Require().NoError(err)

	_, err = store.Upsert(s.ctx, &domain.Agent{ExternalID: 2, FirstName: "A", LastName: "B", Slug: "a-b", ImagePath: "x", IsActive: true})
	s.Error(err)
}

func (s *PostgresIntegrationSuite) TestAgentStore_SlugOwner() {
	store := NewAgentStore(s.db)

	_, err := store.Upsert(s.ctx, &domain.Agent{ExternalID: 7, FirstName: "Anna", LastName: "Nowak", Slug: "anna-nowak", ImagePath: "x", IsActive: true})
	s.Require().NoError(err)
	_, err = store.DeactivateMissing(s.ctx, []int64{})
	s.Require().NoError(err)

	owner, found, err := store.SlugOwner(s.ctx, "anna-nowak")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(int64(7), owner)

	_, found, err = store.SlugOwner(s.ctx, "jan-kowalski")
	s.Require().NoError(err)
	s.False(found)
}

// rosterSource serves a fixed agent roster to AgentSyncService.
type rosterSource struct {
	agents []asari.Agent
}

func (r *rosterSource) ID() string   { return "asari" }
func (r *rosterSource) Name() string { return "Asari CRM" }

func (r *rosterSource) ListExportedListingIDs(context.Context) ([]domain.ManifestEntry, error) {
	return nil, nil
}

func (r *rosterSource) GetListingDetail(context.Context, int64) (*asari.Listing, error) {
	return nil, errors.New("not served")
}

func (r *rosterSource) ListAgents(context.Context) ([]asari.Agent, error) {
	return r.agents, nil
}

func (r *rosterSource) ImageURLs(int64) (string, string, string) { return "", "", "" }

func (s *PostgresIntegrationSuite) newAgentSync(src *rosterSource) *service.AgentSyncService {
	return service.NewAgentSyncService(
		src,
		NewAgentStore(s.db),
		NewSyncStateStore(s.db),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		config.SyncConfig{AgentImageDir: "/images/agents"},
	)
}

func (s *PostgresIntegrationSuite) agentSlugs() map[int64]string {
	var rows []struct {
		ExternalID int64  `db:"external_id"`
		Slug       string `db:"slug"`
	}
	s.Require().NoError(s.db.SelectContext(s.ctx, &rows, "SELECT external_id, slug FROM agents"))

	slugs := make(map[int64]string, len(rows))
	for _, r := range rows {
		slugs[r.ExternalID] = r.Slug
	}
	return slugs
}

func (s *PostgresIntegrationSuite) TestAgentSync_SlugsStableWhenRosterReordered() {
	src := &rosterSource{agents: []asari.Agent{
		{ID: 1, FirstName: "Anna", LastName: "Nowak", Status: "Active"},
		{ID: 2, FirstName: "Anna", LastName: "Nowak", Status: "Active"},
	}}
	syncer := s.newAgentSync(src)

	report, err := syncer.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Created)
	s.Equal(0, report.Errors)
	first := s.agentSlugs()

	src.agents = []asari.Agent{src.agents[1], src.agents[0]}
	report, err = syncer.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Updated)
	s.Equal(0, report.Errors)

	s.Equal(first, s.agentSlugs())
	s.Equal("anna-nowak", first[1])
	s.Equal("anna-nowak-2", first[2])
}

func (s *PostgresIntegrationSuite) TestAgentSync_SlugHeldByDeactivatedAgent() {
	src := &rosterSource{agents: []asari.Agent{
		{ID: 7, FirstName: "Anna", LastName: "Nowak", Status: "Active"},
	}}
	syncer := s.newAgentSync(src)

	_, err := syncer.Sync(s.ctx)
	s.Require().NoError(err)

	src.agents = []asari.Agent{
		{ID: 9, FirstName: "Anna", LastName: "Nowak", Status: "Active"},
	}
	report, err := syncer.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Created)
	s.Equal(1, report.Deactivated)
	s.Equal(0, report.Errors)

	s.Equal(map[int64]string{7: "anna-nowak", 9: "anna-nowak-9"}, s.agentSlugs())

	got, err := NewAgentStore(s.db).GetByExternalID(s.ctx, 9)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("/images/agents/anna-nowak-9.jpg", got.ImagePath)
	s.True(got.IsActive)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_GetNew() {
	store := NewSyncStateStore(s.db)

	state, err := store.Get(s.ctx, "new-source")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("new-source", state.SourceID)
	s.True(state.LastSyncedAt.IsZero())
	s.Equal(int64(0), state.TotalSynced)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_UpdateAndGet() {
	store := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.SyncState{
		SourceID:       domain.SyncSourceListings,
		LastSyncedAt:   now,
		LastExternalID: 9760309,
		TotalSynced:    100,
	}
	s.Require().NoError(store.Update(s.ctx, state))

	state.TotalSynced = 120
	s.Require().NoError(store.Update(s.ctx, state))

	retrieved, err := store.Get(s.ctx, domain.SyncSourceListings)
	s.NoError(err)
	s.Equal(int64(9760309), retrieved.LastExternalID)
	s.Equal(int64(120), retrieved.TotalSynced)
	s.WithinDuration(now, retrieved.LastSyncedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	listings := NewListingStore(s.db)
	images := NewImageStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(txCtx context.Context) error {
		id, _, err := listings.Upsert(txCtx, newListing(1, now))
		if err != nil {
			return err
		}
		return images.ReplaceForListing(txCtx, id, []domain.ListingImage{
			{ExternalID: 100, ThumbnailURL: "t", NormalURL: "n", OriginalURL: "o"},
		})
	})
	s.Require().NoError(err)

	got, err := listings.GetByExternalID(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Len(got.Images, 1)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	listings := NewListingStore(s.db)

	err := tm.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if _, _, err := listings.Upsert(txCtx, newListing(1, time.Now())); err != nil {
			return err
		}
		return errors.New("image insert failed")
	})
	s.Error(err)

	got, err := listings.GetByExternalID(s.ctx, 1)
	s.NoError(err)
	s.Nil(got)
}

func (s *PostgresIntegrationSuite) TestAdvisoryLocker() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first := NewAdvisoryLocker(s.db, SyncLockKey, logger)
	second := NewAdvisoryLocker(s.db, SyncLockKey, logger)

	unlock, ok, err := first.TryLock(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, ok, err = second.TryLock(s.ctx)
	s.Require().NoError(err)
	s.False(ok)

	unlock()

	unlock, ok, err = second.TryLock(s.ctx)
	s.Require().NoError(err)
	s.True(ok)
	unlock()
}
