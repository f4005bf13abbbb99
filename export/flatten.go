// Package export turns captured offer payloads into flat records and CSV.
package export

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ysmood/gson"

	"github.com/use-agent/offersync/models"
)

// Field lookups. Each field lists the paths tried in order; the first
// scalar found wins. The offers API and the DOM extractor use different
// shapes, both are covered.
var (
	offerLists = [][]any{{"offers"}, {"payload", "offers"}, {"data", "offers"}}

	offerCode  = [][]any{{"offerCode"}, {"code"}}
	offerName  = [][]any{{"name"}, {"offerName"}, {"title"}}
	offerType  = [][]any{{"offerType"}, {"type"}}
	redeemBy   = [][]any{{"reserveByDate"}, {"redeemBy"}, {"bookByDate"}, {"expirationDate"}}
	tradeIn    = [][]any{{"tradeInValue"}, {"tradeIn"}}
	perkFields = [][]any{{"perks"}, {"perkCodes"}}

	shipName      = [][]any{{"shipName"}, {"ship", "name"}}
	shipCode      = [][]any{{"shipCode"}, {"ship", "code"}}
	sailDate      = [][]any{{"sailDate"}, {"departureDate"}, {"startDate"}}
	nights        = [][]any{{"nights"}, {"numberOfNights"}, {"duration"}}
	itinerary     = [][]any{{"itineraryDescription"}, {"itinerary", "name"}, {"itinerary"}}
	departurePort = [][]any{{"departurePort", "name"}, {"departurePort"}, {"portName"}}
	roomType      = [][]any{{"roomType"}, {"stateroomType"}, {"cabinType"}}
	guests        = [][]any{{"guests"}, {"numberOfGuests"}, {"occupancy"}}

	interior  = [][]any{{"pricing", "interior"}, {"interiorPrice"}, {"prices", "interior"}}
	oceanview = [][]any{{"pricing", "oceanview"}, {"oceanviewPrice"}, {"prices", "oceanview"}}
	balcony   = [][]any{{"pricing", "balcony"}, {"balconyPrice"}, {"prices", "balcony"}}
	suite     = [][]any{{"pricing", "suite"}, {"suitePrice"}, {"prices", "suite"}}
)

// Flatten turns an offers payload into one record per offer sailing. Offers
// without sailings yield a single record. Missing fields are left empty and
// a payload that is not an offers list yields no records.
func Flatten(brand models.Brand, payload json.RawMessage) []models.OfferRecord {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil
	}
	list := firstList(gson.New([]byte(payload)), offerLists)

	var out []models.OfferRecord
	for _, item := range list {
		offer := item
		if inner, ok := item.Gets("campaignOffer"); ok && isObject(inner) {
			offer = inner
		}
		base := models.OfferRecord{
			Brand:        string(brand),
			OfferCode:    lookup(offer, offerCode),
			OfferName:    lookup(offer, offerName),
			OfferType:    lookup(offer, offerType),
			RedeemBy:     lookup(offer, redeemBy),
			RoomType:     lookup(offer, roomType),
			TradeInValue: lookup(offer, tradeIn),
			Perks:        perks(offer),
		}
		if base.OfferCode == "" {
			base.OfferCode = lookup(item, offerCode)
		}

		sailings := sailingsOf(offer)
		if len(sailings) == 0 {
			out = append(out, base)
			continue
		}
		for _, s := range sailings {
			r := base
			r.ShipName = lookup(s, shipName)
			r.ShipCode = lookup(s, shipCode)
			r.SailDate = lookup(s, sailDate)
			r.Nights = lookup(s, nights)
			r.Itinerary = lookup(s, itinerary)
			r.DeparturePort = lookup(s, departurePort)
			if room := lookup(s, roomType); room != "" {
				r.RoomType = room
			}
			r.Guests = lookup(s, guests)
			r.InteriorPrice = lookup(s, interior)
			r.OceanviewPrice = lookup(s, oceanview)
			r.BalconyPrice = lookup(s, balcony)
			r.SuitePrice = lookup(s, suite)
			out = append(out, r)
		}
	}
	return out
}

func sailingsOf(offer gson.JSON) []gson.JSON {
	for _, key := range []string{"sailings", "sailingList"} {
		if v, ok := offer.Gets(key); ok {
			return asList(v)
		}
	}
	return nil
}

func firstList(j gson.JSON, paths [][]any) []gson.JSON {
	if l := asList(j); l != nil {
		return l
	}
	for _, p := range paths {
		if v, ok := j.Gets(p...); ok {
			if l := asList(v); l != nil {
				return l
			}
		}
	}
	return nil
}

func asList(j gson.JSON) []gson.JSON {
	if _, ok := j.Val().([]any); !ok {
		return nil
	}
	return j.Arr()
}

func isObject(j gson.JSON) bool {
	_, ok := j.Val().(map[string]any)
	return ok
}

// lookup returns the first scalar found at paths as a string.
func lookup(j gson.JSON, paths [][]any) string {
	for _, p := range paths {
		v, ok := j.Gets(p...)
		if !ok {
			continue
		}
		if s, ok := scalar(v.Val()); ok {
			return s
		}
	}
	return ""
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// perks joins a list of perk names or perk objects with "; ".
func perks(offer gson.JSON) string {
	for _, p := range perkFields {
		v, ok := offer.Gets(p...)
		if !ok {
			continue
		}
		if s, ok := scalar(v.Val()); ok {
			return s
		}
		var names []string
		for _, item := range asList(v) {
			if s, ok := scalar(item.Val()); ok && s != "" {
				names = append(names, s)
				continue
			}
			if s := lookup(item, [][]any{{"name"}, {"description"}, {"code"}}); s != "" {
				names = append(names, s)
			}
		}
		if len(names) > 0 {
			return strings.Join(names, "; ")
		}
	}
	return ""
}
