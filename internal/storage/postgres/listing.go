package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"estate_sync/internal/domain"
)

type ListingStore struct {
	db *sqlx.DB
}

func NewListingStore(db *sqlx.DB) *ListingStore {
	return &ListingStore{db: db}
}

// Upsert inserts or updates by external_id. A stored row whose upstream
// timestamp is newer than the incoming one is left untouched and
// domain.ErrStaleListing is returned, unless the row is archived: an
// archived listing back in the manifest always takes the upstream payload.
// ai_summary is never written here.
func (s *ListingStore) Upsert(ctx context.Context, l *domain.Listing) (int64, bool, error) {
	query := `
		INSERT INTO listings (
			external_id, listing_number, external_last_updated, status, property_type,
			transaction_type, title, description, description_en, price, currency,
			price_per_area, area, rooms, floor, floor_count, city, district, raw_district,
			street, house_number, latitude, longitude, geohash, agent_external_id,
			agent_name, agent_phone, agent_email, details, upstream_created_at,
			upstream_updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31
		)
		ON CONFLICT (external_id) DO UPDATE SET
			listing_number = EXCLUDED.listing_number,
			external_last_updated = EXCLUDED.external_last_updated,
			status = EXCLUDED.status,
			property_type = EXCLUDED.property_type,
			transaction_type = EXCLUDED.transaction_type,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			description_en = EXCLUDED.description_en,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			price_per_area = EXCLUDED.price_per_area,
			area = EXCLUDED.area,
			rooms = EXCLUDED.rooms,
			floor = EXCLUDED.floor,
			floor_count = EXCLUDED.floor_count,
			city = EXCLUDED.city,
			district = EXCLUDED.district,
			raw_district = EXCLUDED.raw_district,
			street = EXCLUDED.street,
			house_number = EXCLUDED.house_number,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			geohash = EXCLUDED.geohash,
			agent_external_id = EXCLUDED.agent_external_id,
			agent_name = EXCLUDED.agent_name,
			agent_phone = EXCLUDED.agent_phone,
			agent_email = EXCLUDED.agent_email,
			details = EXCLUDED.details,
			upstream_created_at = EXCLUDED.upstream_created_at,
			upstream_updated_at = EXCLUDED.upstream_updated_at,
			local_updated_at = NOW()
		WHERE listings.external_last_updated <= EXCLUDED.external_last_updated
			OR listings.status = 'archived'
		RETURNING id, (xmax = 0) AS created`

	details, err := domain.EncodeDetails(l.Details)
	if err != nil {
		return 0, false, fmt.Errorf("encode details: %w", err)
	}

	exec := GetExecutor(ctx, s.db)

	var id int64
	var created bool
	err = exec.QueryRowxContext(ctx, query,
		l.ExternalID,
		l.ListingNumber,
		l.ExternalLastUpdated,
		l.Status,
		l.PropertyType,
		nullIfEmpty(string(l.TransactionType)),
		l.Title,
		l.Description,
		l.DescriptionEN,
		l.Price,
		l.Currency,
		l.PricePerArea,
		l.Area,
		l.Rooms,
		l.Floor,
		l.FloorCount,
		l.City,
		l.District,
		l.RawDistrict,
		l.Street,
		l.HouseNumber,
		l.Latitude,
		l.Longitude,
		l.Geohash,
		l.AgentExternalID,
		l.AgentName,
		l.AgentPhone,
		l.AgentEmail,
		jsonParam(details),
		nullTime(l.UpstreamCreatedAt),
		nullTime(l.UpstreamUpdatedAt),
	).Scan(&id, &created)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, domain.ErrStaleListing
	}
	if err != nil {
		return 0, false, err
	}

	return id, created, nil
}

// GetSyncStates returns external_id -> external_last_updated for every
// listing that is not archived. Archived listings that reappear upstream
// are therefore always refetched.
func (s *ListingStore) GetSyncStates(ctx context.Context) (map[int64]time.Time, error) {
	query := `SELECT external_id, external_last_updated FROM listings WHERE status <> $1`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, domain.ListingStatusArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]time.Time)
	for rows.Next() {
		var extID int64
		var lastUpdated time.Time
		if err := rows.Scan(&extID, &lastUpdated); err != nil {
			return nil, err
		}
		result[extID] = lastUpdated
	}

	return result, rows.Err()
}

func (s *ListingStore) ArchiveMissing(ctx context.Context, keep []int64) ([]int64, error) {
	if keep == nil {
		keep = []int64{}
	}

	query := `
		UPDATE listings
		SET status = $1, local_updated_at = NOW()
		WHERE status <> $1 AND NOT (external_id = ANY($2))
		RETURNING external_id`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, domain.ListingStatusArchived, pq.Array(keep))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archived []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		archived = append(archived, id)
	}

	return archived, rows.Err()
}

// PurgeAll deletes every listing; images go with them through the cascade.
func (s *ListingStore) PurgeAll(ctx context.Context) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM listings")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type listingRow struct {
	ID                  int64          `db:"id"`
	ExternalID          int64          `db:"external_id"`
	ListingNumber       string         `db:"listing_number"`
	ExternalLastUpdated time.Time      `db:"external_last_updated"`
	Status              string         `db:"status"`
	PropertyType        string         `db:"property_type"`
	TransactionType     sql.NullString `db:"transaction_type"`
	Title               string         `db:"title"`
	Description         *string        `db:"description"`
	DescriptionEN       *string        `db:"description_en"`
	Price               *float64       `db:"price"`
	Currency            string         `db:"currency"`
	PricePerArea        *float64       `db:"price_per_area"`
	Area                *float64       `db:"area"`
	Rooms               *int           `db:"rooms"`
	Floor               *int           `db:"floor"`
	FloorCount          *int           `db:"floor_count"`
	City                *string        `db:"city"`
	District            *string        `db:"district"`
	RawDistrict         *string        `db:"raw_district"`
	Street              *string        `db:"street"`
	HouseNumber         *string        `db:"house_number"`
	Latitude            *float64       `db:"latitude"`
	Longitude           *float64       `db:"longitude"`
	Geohash             *string        `db:"geohash"`
	AgentExternalID     *int64         `db:"agent_external_id"`
	AgentName           *string        `db:"agent_name"`
	AgentPhone          *string        `db:"agent_phone"`
	AgentEmail          *string        `db:"agent_email"`
	Details             []byte         `db:"details"`
	UpstreamCreatedAt   sql.NullTime   `db:"upstream_created_at"`
	UpstreamUpdatedAt   sql.NullTime   `db:"upstream_updated_at"`
	AISummary           *string        `db:"ai_summary"`
	LocalCreatedAt      time.Time      `db:"local_created_at"`
	LocalUpdatedAt      time.Time      `db:"local_updated_at"`
}

// GetByExternalID loads one listing with its images. It returns nil, nil
// when the listing does not exist.
func (s *ListingStore) GetByExternalID(ctx context.Context, externalID int64) (*domain.Listing, error) {
	exec := GetExecutor(ctx, s.db)

	var row listingRow
	err := sqlx.GetContext(ctx, exec, &row, `SELECT * FROM listings WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	details, err := domain.DecodeDetails(domain.PropertyType(row.PropertyType), row.Details)
	if err != nil {
		return nil, err
	}

	l := &domain.Listing{
		ID:                  row.ID,
		ExternalID:          row.ExternalID,
		ListingNumber:       row.ListingNumber,
		ExternalLastUpdated: row.ExternalLastUpdated,
		Status:              domain.ListingStatus(row.Status),
		PropertyType:        domain.PropertyType(row.PropertyType),
		TransactionType:     domain.TransactionType(row.TransactionType.String),
		Title:               row.Title,
		Description:         row.Description,
		DescriptionEN:       row.DescriptionEN,
		Price:               row.Price,
		Currency:            row.Currency,
		PricePerArea:        row.PricePerArea,
		Area:                row.Area,
		Rooms:               row.Rooms,
		Floor:               row.Floor,
		FloorCount:          row.FloorCount,
		City:                row.City,
		District:            row.District,
		RawDistrict:         row.RawDistrict,
		Street:              row.Street,
		HouseNumber:         row.HouseNumber,
		Latitude:            row.Latitude,
		Longitude:           row.Longitude,
		Geohash:             row.Geohash,
		AgentExternalID:     row.AgentExternalID,
		AgentName:           row.AgentName,
		AgentPhone:          row.AgentPhone,
		AgentEmail:          row.AgentEmail,
		Details:             details,
		UpstreamCreatedAt:   row.UpstreamCreatedAt.Time,
		UpstreamUpdatedAt:   row.UpstreamUpdatedAt.Time,
		AISummary:           row.AISummary,
		LocalCreatedAt:      row.LocalCreatedAt,
		LocalUpdatedAt:      row.LocalUpdatedAt,
	}

	l.Images, err = NewImageStore(s.db).ListForListing(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}

	return l, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// jsonParam passes JSON as text; lib/pq would encode a []byte as bytea.
func jsonParam(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
