package service

import (
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"

	"estate_sync/internal/domain"
	"estate_sync/internal/location"
	"estate_sync/internal/source/asari"
	"estate_sync/internal/textnorm"
)

const (
	geohashPrecision = 7
	defaultCurrency  = "PLN"
)

var errEmptyDetail = errors.New("empty listing detail")

// imageURLer builds the public URLs of an upstream image id.
type imageURLer interface {
	ImageURLs(imageID int64) (thumbnail, normal, original string)
}

// ListingMapper turns upstream listing detail into the local schema.
type ListingMapper struct {
	normalizer *location.Normalizer
	images     imageURLer
	logger     *slog.Logger
	now        func() time.Time
}

func NewListingMapper(normalizer *location.Normalizer, images imageURLer, logger *slog.Logger) *ListingMapper {
	return &ListingMapper{
		normalizer: normalizer,
		images:     images,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Map builds the local record for detail. externalLastUpdated is always the
// manifest timestamp so the next run compares like with like. statusKnown
// is false when the upstream status fell back to unknown.
func (m *ListingMapper) Map(detail *asari.Listing, entry domain.ManifestEntry) (listing *domain.Listing, statusKnown bool, err error) {
	if detail == nil {
		return nil, false, errEmptyDetail
	}

	logger := m.logger.With("external_id", detail.ID)

	status, statusKnown := domain.ParseListingStatus(detail.Status)
	if !statusKnown {
		logger.Warn("unknown listing status", "status", detail.Status)
	}
	// Archived is reserved for listings absent from the manifest.
	if status == domain.ListingStatusArchived {
		status = domain.ListingStatusClosed
	}

	propertyType, transactionType := parseSection(detail.Section)
	if propertyType == domain.PropertyOther || transactionType == "" {
		logger.Warn("unrecognized listing section", "section", detail.Section)
	}

	l := &domain.Listing{
		ExternalID:          detail.ID,
		ListingNumber:       detail.ListingID,
		ExternalLastUpdated: entry.LastUpdated,
		Status:              status,
		PropertyType:        propertyType,
		TransactionType:     transactionType,
		Title:               textnorm.CollapseSpaces(detail.Name),
		Description:         nonEmpty(detail.Description),
		DescriptionEN:       nonEmpty(detail.EnglishDescription),
		Currency:            defaultCurrency,
		Area:                detail.TotalArea,
		Rooms:               detail.NoOfRooms,
		Floor:               detail.FloorNo,
		FloorCount:          detail.NoOfFloors,
		HouseNumber:         nonEmpty(detail.HouseNumber),
		Latitude:            detail.GeoLat,
		Longitude:           detail.GeoLng,
		Details:             buildDetails(propertyType, detail),
		UpstreamCreatedAt:   m.parseTime(logger, "dateCreated", detail.DateCreated),
		UpstreamUpdatedAt:   m.parseTime(logger, "lastUpdated", detail.LastUpdated),
	}
	if l.Title == "" {
		l.Title = detail.ListingID
	}

	if detail.Price != nil {
		l.Price = &detail.Price.Amount
		if detail.Price.Currency != "" {
			l.Currency = strings.ToUpper(detail.Price.Currency)
		}
	}
	l.PricePerArea = pricePerArea(detail)

	if detail.Location != nil {
		l.City = nonEmpty(&detail.Location.Name)
		l.RawDistrict = nonEmpty(detail.Location.Quarter)
	}
	if detail.Street != nil {
		l.Street = nonEmpty(&detail.Street.Name)
	}
	if district, ok := m.normalizer.Resolve(deref(l.City), deref(l.RawDistrict), deref(l.Street), deref(l.HouseNumber)); ok {
		l.District = &district
	} else if l.Street != nil && m.normalizer.IsSplitStreet(*l.Street) {
		logger.Warn("split street without usable house number, district left empty",
			"street", *l.Street,
			"house_number", deref(l.HouseNumber),
		)
	}

	if hasCoordinates(detail.GeoLat, detail.GeoLng) {
		hash := geohash.EncodeWithPrecision(*detail.GeoLat, *detail.GeoLng, geohashPrecision)
		l.Geohash = &hash
	}

	if a := detail.Agent; a != nil && a.ID > 0 {
		id := a.ID
		l.AgentExternalID = &id
		l.AgentName = nonEmpty(ptr(textnorm.CollapseSpaces(a.FirstName + " " + a.LastName)))
		l.AgentPhone = nonEmpty(a.PhoneNumber)
		l.AgentEmail = nonEmpty(a.Email)
	}

	l.Images = make([]domain.ListingImage, 0, len(detail.Images))
	for i, img := range detail.Images {
		thumbnail, normal, original := m.images.ImageURLs(img.ID)
		l.Images = append(l.Images, domain.ListingImage{
			ExternalID:   img.ID,
			Position:     i,
			Description:  nonEmpty(img.Description),
			IsScheme:     img.IsScheme,
			ThumbnailURL: thumbnail,
			NormalURL:    normal,
			OriginalURL:  original,
		})
	}

	return l, statusKnown, nil
}

func (m *ListingMapper) parseTime(logger *slog.Logger, field, raw string) time.Time {
	t, err := asari.ParseTime(raw)
	if err != nil {
		logger.Warn("unparseable timestamp, using now", "field", field, "value", raw)
		return m.now()
	}
	return t
}

var sectionTypes = []struct {
	prefix string
	pt     domain.PropertyType
}{
	{"apartment", domain.PropertyApartment},
	{"house", domain.PropertyHouse},
	{"lot", domain.PropertyLand},
	{"land", domain.PropertyLand},
	{"commercialspace", domain.PropertyCommercial},
	{"commercialobject", domain.PropertyCommercial},
	{"commercial", domain.PropertyCommercial},
	{"warehouse", domain.PropertyCommercial},
}

// parseSection splits an upstream section such as "ApartmentSale" or
// "CommercialSpaceRental" into property and transaction type. An unknown
// offer suffix yields an empty transaction type.
func parseSection(section string) (domain.PropertyType, domain.TransactionType) {
	s := strings.ToLower(strings.TrimSpace(section))

	var tt domain.TransactionType
	switch {
	case strings.HasSuffix(s, "sale"):
		tt = domain.TransactionSale
		s = strings.TrimSuffix(s, "sale")
	case strings.HasSuffix(s, "rental"):
		tt = domain.TransactionRent
		s = strings.TrimSuffix(s, "rental")
	case strings.HasSuffix(s, "rent"):
		tt = domain.TransactionRent
		s = strings.TrimSuffix(s, "rent")
	}

	for _, st := range sectionTypes {
		if s == st.prefix {
			return st.pt, tt
		}
	}
	return domain.PropertyOther, tt
}

func buildDetails(pt domain.PropertyType, d *asari.Listing) domain.Details {
	switch pt {
	case domain.PropertyApartment:
		return &domain.ApartmentDetails{
			BuildingType: nonEmpty(d.BuildingType),
			Material:     nonEmpty(d.Material),
			YearBuilt:    d.YearBuilt,
			Heating:      nonEmpty(d.Heating),
			Ownership:    nonEmpty(d.Ownership),
			KitchenType:  nonEmpty(d.KitchenType),
			Balcony:      d.Balcony,
			Elevator:     d.Elevator,
			Basement:     d.Basement,
			Parking:      nonEmpty(d.Parking),
		}
	case domain.PropertyHouse:
		return &domain.HouseDetails{
			HouseType: nonEmpty(d.HouseType),
			LotArea:   d.LotArea,
			Material:  nonEmpty(d.Material),
			YearBuilt: d.YearBuilt,
			Heating:   nonEmpty(d.Heating),
			RoofType:  nonEmpty(d.RoofType),
			Garage:    d.Garage,
			Fence:     nonEmpty(d.Fence),
		}
	case domain.PropertyLand:
		return &domain.LandDetails{
			LotShape:  nonEmpty(d.LotShape),
			LotWidth:  d.LotWidth,
			LotLength: d.LotLength,
			LotType:   nonEmpty(d.LotType),
			Access:    nonEmpty(d.Access),
			Utilities: d.Utilities,
		}
	case domain.PropertyCommercial:
		return &domain.CommercialDetails{
			SpaceType:     nonEmpty(d.CommercialSpaceType),
			ShopWindow:    d.ShopWindow,
			ParkingPlaces: d.ParkingPlaces,
			Material:      nonEmpty(d.Material),
			YearBuilt:     d.YearBuilt,
			Amenities:     d.Amenities,
		}
	}
	return nil
}

func pricePerArea(d *asari.Listing) *float64 {
	if d.PriceM2 != nil && d.PriceM2.Amount > 0 {
		v := d.PriceM2.Amount
		return &v
	}
	if d.Price == nil || d.TotalArea == nil || *d.TotalArea <= 0 || d.Price.Amount <= 0 {
		return nil
	}
	v := math.Round(d.Price.Amount / *d.TotalArea * 100) / 100
	return &v
}

func hasCoordinates(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	if *lat == 0 && *lng == 0 {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T {
	return &v
}
