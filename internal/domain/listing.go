package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrStaleListing is returned by a listing upsert that was not applied
// because the stored row carries a newer upstream timestamp.
var ErrStaleListing = errors.New("stored listing is newer than upstream payload")

type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusClosed   ListingStatus = "closed"
	ListingStatusArchived ListingStatus = "archived"
	ListingStatusUnknown  ListingStatus = "unknown"
)

// ParseListingStatus case-folds an upstream status. Unrecognized values map
// to ListingStatusUnknown with ok=false so callers can report the drift.
func ParseListingStatus(raw string) (status ListingStatus, ok bool) {
	switch ListingStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case ListingStatusActive:
		return ListingStatusActive, true
	case ListingStatusClosed:
		return ListingStatusClosed, true
	case ListingStatusArchived:
		return ListingStatusArchived, true
	}
	return ListingStatusUnknown, false
}

type TransactionType string

const (
	TransactionSale TransactionType = "sale"
	TransactionRent TransactionType = "rent"
)

// ManifestEntry is one row of the upstream exported-listings manifest.
type ManifestEntry struct {
	ExternalID  int64
	LastUpdated time.Time
}

// Listing is the local cache of one upstream property listing.
type Listing struct {
	ID                  int64
	ExternalID          int64
	ListingNumber       string
	ExternalLastUpdated time.Time
	Status              ListingStatus
	PropertyType        PropertyType
	TransactionType     TransactionType

	Title         string
	Description   *string
	DescriptionEN *string
	Price         *float64
	Currency      string
	PricePerArea  *float64
	Area          *float64
	Rooms         *int
	Floor         *int
	FloorCount    *int

	City        *string
	District    *string // canonical district, nil when unresolved
	RawDistrict *string
	Street      *string
	HouseNumber *string
	Latitude    *float64
	Longitude   *float64
	Geohash     *string

	AgentExternalID *int64
	AgentName       *string
	AgentPhone      *string
	AgentEmail      *string

	Details Details
	Images  []ListingImage

	UpstreamCreatedAt time.Time
	UpstreamUpdatedAt time.Time

	// Filled by downstream processes, never written by sync.
	AISummary *string

	LocalCreatedAt time.Time
	LocalUpdatedAt time.Time
}

type ListingImage struct {
	ExternalID   int64   `db:"external_id"`
	Position     int     `db:"position"`
	Description  *string `db:"description"`
	IsScheme     bool    `db:"is_scheme"`
	ThumbnailURL string  `db:"thumbnail_url"`
	NormalURL    string  `db:"normal_url"`
	OriginalURL  string  `db:"original_url"`
}

type ListingAction string

const (
	ListingCreated  ListingAction = "create"
	ListingUpdated  ListingAction = "update"
	ListingArchived ListingAction = "archive"
)

// ListingEvent announces a change to a cached listing. Listing is nil for
// archive events.
type ListingEvent struct {
	Action     ListingAction
	ExternalID int64
	Listing    *Listing
}
