package domain

import (
	"encoding/json"
	"fmt"
)

type PropertyType string

const (
	PropertyApartment  PropertyType = "apartment"
	PropertyHouse      PropertyType = "house"
	PropertyLand       PropertyType = "land"
	PropertyCommercial PropertyType = "commercial"
	PropertyOther      PropertyType = "other"
)

// Details carries the attributes specific to one property type.
// Implementations: *ApartmentDetails, *HouseDetails, *LandDetails,
// *CommercialDetails.
type Details interface {
	PropertyType() PropertyType
}

type ApartmentDetails struct {
	BuildingType *string `json:"buildingType,omitempty"`
	Material     *string `json:"material,omitempty"`
	YearBuilt    *int    `json:"yearBuilt,omitempty"`
	Heating      *string `json:"heating,omitempty"`
	Ownership    *string `json:"ownership,omitempty"`
	KitchenType  *string `json:"kitchenType,omitempty"`
	Balcony      *bool   `json:"balcony,omitempty"`
	Elevator     *bool   `json:"elevator,omitempty"`
	Basement     *bool   `json:"basement,omitempty"`
	Parking      *string `json:"parking,omitempty"`
}

func (*ApartmentDetails) PropertyType() PropertyType { return PropertyApartment }

type HouseDetails struct {
	HouseType *string  `json:"houseType,omitempty"`
	LotArea   *float64 `json:"lotArea,omitempty"`
	Material  *string  `json:"material,omitempty"`
	YearBuilt *int     `json:"yearBuilt,omitempty"`
	Heating   *string  `json:"heating,omitempty"`
	RoofType  *string  `json:"roofType,omitempty"`
	Garage    *bool    `json:"garage,omitempty"`
	Fence     *string  `json:"fence,omitempty"`
}

func (*HouseDetails) PropertyType() PropertyType { return PropertyHouse }

type LandDetails struct {
	LotShape  *string  `json:"lotShape,omitempty"`
	LotWidth  *float64 `json:"lotWidth,omitempty"`
	LotLength *float64 `json:"lotLength,omitempty"`
	LotType   *string  `json:"lotType,omitempty"`
	Access    *string  `json:"access,omitempty"`
	Utilities []string `json:"utilities,omitempty"`
}

func (*LandDetails) PropertyType() PropertyType { return PropertyLand }

type CommercialDetails struct {
	SpaceType     *string  `json:"spaceType,omitempty"`
	ShopWindow    *bool    `json:"shopWindow,omitempty"`
	ParkingPlaces *int     `json:"parkingPlaces,omitempty"`
	Material      *string  `json:"material,omitempty"`
	YearBuilt     *int     `json:"yearBuilt,omitempty"`
	Amenities     []string `json:"amenities,omitempty"`
}

func (*CommercialDetails) PropertyType() PropertyType { return PropertyCommercial }

// EncodeDetails serializes d for the details column. A nil d encodes to nil.
func EncodeDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// DecodeDetails rebuilds the variant stored for pt. Empty input and
// PropertyOther decode to nil.
func DecodeDetails(pt PropertyType, raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var d Details
	switch pt {
	case PropertyApartment:
		d = &ApartmentDetails{}
	case PropertyHouse:
		d = &HouseDetails{}
	case PropertyLand:
		d = &LandDetails{}
	case PropertyCommercial:
		d = &CommercialDetails{}
	case PropertyOther:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown property type %q", pt)
	}

	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", pt, err)
	}
	return d, nil
}
