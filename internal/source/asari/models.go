package asari

// envelope is the wrapper every Asari site endpoint responds with.
type envelope[T any] struct {
	Success    bool `json:"success"`
	Data       T    `json:"data"`
	TotalCount int  `json:"totalCount"`
}

type ManifestItem struct {
	ID          int64  `json:"id"`
	LastUpdated string `json:"lastUpdated"`
}

// Listing is the full detail payload for one listing.
type Listing struct {
	ID                 int64         `json:"id"`
	ListingID          string        `json:"listingId"`
	Name               string        `json:"name"`
	Description        *string       `json:"description"`
	EnglishDescription *string       `json:"englishDescription"`
	Section            string        `json:"section"`
	Status             string        `json:"status"`
	Price              *Money        `json:"price"`
	PriceM2            *Money        `json:"priceM2"`
	TotalArea          *float64      `json:"totalArea"`
	NoOfRooms          *int          `json:"noOfRooms"`
	FloorNo            *int          `json:"floorNo"`
	NoOfFloors         *int          `json:"noOfFloors"`
	Location           *Location     `json:"location"`
	Street             *Street       `json:"street"`
	HouseNumber        *string       `json:"houseNumber"`
	GeoLat             *float64      `json:"geoLat"`
	GeoLng             *float64      `json:"geoLng"`
	Agent              *ListingAgent `json:"agent"`
	Images             []Image       `json:"images"`
	DateCreated        string        `json:"dateCreated"`
	LastUpdated        string        `json:"lastUpdated"`

	// apartment
	BuildingType *string `json:"buildingType"`
	Material     *string `json:"material"`
	YearBuilt    *int    `json:"yearBuilt"`
	Heating      *string `json:"heating"`
	Ownership    *string `json:"ownershipType"`
	KitchenType  *string `json:"kitchenType"`
	Balcony      *bool   `json:"balcony"`
	Elevator     *bool   `json:"elevator"`
	Basement     *bool   `json:"basement"`
	Parking      *string `json:"parking"`

	// house
	HouseType *string  `json:"houseType"`
	LotArea   *float64 `json:"lotArea"`
	RoofType  *string  `json:"roofType"`
	Garage    *bool    `json:"garage"`
	Fence     *string  `json:"fence"`

	// lot
	LotShape  *string  `json:"lotShape"`
	LotWidth  *float64 `json:"lotWidth"`
	LotLength *float64 `json:"lotLength"`
	LotType   *string  `json:"lotType"`
	Access    *string  `json:"accessType"`
	Utilities []string `json:"utilities"`

	// commercial
	CommercialSpaceType *string  `json:"commercialSpaceType"`
	ShopWindow          *bool    `json:"shopWindow"`
	ParkingPlaces       *int     `json:"noOfParkingPlaces"`
	Amenities           []string `json:"additionalEquipment"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type Location struct {
	Name     string  `json:"name"`
	Province *string `json:"province"`
	Quarter  *string `json:"quarter"`
}

type Street struct {
	Name     string  `json:"name"`
	FullName *string `json:"fullName"`
}

type Image struct {
	ID          int64   `json:"id"`
	Description *string `json:"description"`
	Order       int     `json:"order"`
	IsScheme    bool    `json:"isScheme"`
}

type ListingAgent struct {
	ID          int64   `json:"id"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
	Email       *string `json:"email"`
}

// Agent is one entry of the user roster.
type Agent struct {
	ID           int64   `json:"id"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Email        *string `json:"email"`
	PhoneNumber  *string `json:"phoneNumber"`
	Position     *string `json:"position"`
	Status       string  `json:"status"`
	LastActivity *string `json:"lastActivity"`
}
