package models

// OfferCard is one offer found on a rendered offers page by the DOM extractor.
type OfferCard struct {
	OfferCode   string `json:"offerCode"`
	RoomType    string `json:"roomType"`
	RedeemBy    string `json:"redeemBy"`
	SailingsURL string `json:"sailingsUrl,omitempty"`
	Text        string `json:"text,omitempty"`
	Phase       string `json:"phase"` // "primary" or "fallback"
}

// OfferRecord is the flattened, CSV-ready form of one offer sailing.
// Every field may be empty.
type OfferRecord struct {
	Brand          string `json:"brand"`
	OfferCode      string `json:"offerCode"`
	OfferName      string `json:"offerName"`
	OfferType      string `json:"offerType"`
	RedeemBy       string `json:"redeemBy"`
	ShipName       string `json:"shipName"`
	ShipCode       string `json:"shipCode"`
	SailDate       string `json:"sailDate"`
	Nights         string `json:"nights"`
	Itinerary      string `json:"itinerary"`
	DeparturePort  string `json:"departurePort"`
	RoomType       string `json:"roomType"`
	Guests         string `json:"guests"`
	InteriorPrice  string `json:"interiorPrice"`
	OceanviewPrice string `json:"oceanviewPrice"`
	BalconyPrice   string `json:"balconyPrice"`
	SuitePrice     string `json:"suitePrice"`
	TradeInValue   string `json:"tradeInValue"`
	Perks          string `json:"perks"`
}

// OfferRecordHeader is the CSV header, in the same order as OfferRecord.Row.
var OfferRecordHeader = []string{
	"Brand", "Offer Code", "Offer Name", "Offer Type", "Redeem By",
	"Ship", "Ship Code", "Sail Date", "Nights", "Itinerary", "Departure Port",
	"Room Type", "Guests", "Interior", "Oceanview", "Balcony", "Suite",
	"Trade-In Value", "Perks",
}

// Row returns the record's fields in header order.
func (r OfferRecord) Row() []string {
	return []string{
		r.Brand, r.OfferCode, r.OfferName, r.OfferType, r.RedeemBy,
		r.ShipName, r.ShipCode, r.SailDate, r.Nights, r.Itinerary, r.DeparturePort,
		r.RoomType, r.Guests, r.InteriorPrice, r.OceanviewPrice, r.BalconyPrice, r.SuitePrice,
		r.TradeInValue, r.Perks,
	}
}
