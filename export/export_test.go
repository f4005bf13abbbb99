package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/offersync/models"
)

const apiOffers = `{
  "offers": [
    {
      "campaignOffer": {
        "offerCode": "25RCL104",
        "name": "Balcony Getaway",
        "offerType": "FREEPLAY",
        "reserveByDate": "2025-03-31",
        "tradeInValue": 450.5,
        "perks": [{"name": "Free Play"}, {"name": "Drinks"}],
        "sailings": [
          {
            "shipName": "Wonder of the Seas",
            "shipCode": "WN",
            "sailDate": "2025-05-04",
            "nights": 7,
            "itineraryDescription": "7 Night Western Caribbean",
            "departurePort": {"name": "Port Canaveral"},
            "roomType": "Balcony",
            "pricing": {"interior": 0, "balcony": 199}
          },
          {
            "ship": {"name": "Icon of the Seas", "code": "IC"},
            "sailDate": "2025-06-01"
          }
        ]
      }
    },
    {"offerCode": "25MAR203", "roomType": "Junior Suite", "redeemBy": "04/15/2025", "phase": "primary"}
  ]
}`

func TestFlatten(t *testing.T) {
	recs := Flatten(models.BrandRoyal, json.RawMessage(apiOffers))
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, "royal", first.Brand)
	assert.Equal(t, "25RCL104", first.OfferCode)
	assert.Equal(t, "Balcony Getaway", first.OfferName)
	assert.Equal(t, "FREEPLAY", first.OfferType)
	assert.Equal(t, "2025-03-31", first.RedeemBy)
	assert.Equal(t, "450.5", first.TradeInValue)
	assert.Equal(t, "Free Play; Drinks", first.Perks)
	assert.Equal(t, "Wonder of the Seas", first.ShipName)
	assert.Equal(t, "WN", first.ShipCode)
	assert.Equal(t, "7", first.Nights)
	assert.Equal(t, "7 Night Western Caribbean", first.Itinerary)
	assert.Equal(t, "Port Canaveral", first.DeparturePort)
	assert.Equal(t, "Balcony", first.RoomType)
	assert.Equal(t, "0", first.InteriorPrice)
	assert.Equal(t, "199", first.BalconyPrice)
	assert.Empty(t, first.SuitePrice)

	second := recs[1]
	assert.Equal(t, "25RCL104", second.OfferCode, "offer fields repeat per sailing")
	assert.Equal(t, "Icon of the Seas", second.ShipName)
	assert.Equal(t, "IC", second.ShipCode)
	assert.Empty(t, second.Nights)

	dom := recs[2]
	assert.Equal(t, "25MAR203", dom.OfferCode)
	assert.Equal(t, "Junior Suite", dom.RoomType)
	assert.Equal(t, "04/15/2025", dom.RedeemBy)
	assert.Empty(t, dom.ShipName)
}

func TestFlatten_NeverFails(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"empty", ``, 0},
		{"not json", `{"offers":`, 0},
		{"no list", `{"offers":{"a":1}}`, 0},
		{"bare array", `[{"offerCode":"X"},{}]`, 2},
		{"nested payload", `{"payload":{"offers":[{"offerCode":"X","sailings":"n/a"}]}}`, 1},
		{"wrong types", `{"offers":[{"offerCode":{"x":1},"sailings":[null, 3]}]}`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := Flatten(models.BrandCelebrity, json.RawMessage(tt.payload))
			assert.Len(t, recs, tt.want)
			for _, r := range recs {
				assert.Len(t, r.Row(), len(models.OfferRecordHeader))
			}
		})
	}
}

func TestFlatten_BlankValueFallsThrough(t *testing.T) {
	recs := Flatten(models.BrandRoyal, json.RawMessage(`{"offers":[{"offerCode":"   ","code":"X1","name":"","title":"Sun Sale"}]}`))
	require.Len(t, recs, 1)
	assert.Equal(t, "X1", recs[0].OfferCode)
	assert.Equal(t, "Sun Sale", recs[0].OfferName)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	tricky := "Drinks, \"premium\" package\nand Wi-Fi"
	recs := []models.OfferRecord{
		{Brand: "royal", OfferCode: "25RCL104", Perks: tricky},
		{Brand: "celebrity"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs))
	assert.Contains(t, buf.String(), `"Drinks, ""premium"" package`)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.OfferRecordHeader, rows[0])
	assert.Equal(t, tricky, rows[1][len(rows[1])-1])
	assert.Equal(t, "celebrity", rows[2][0])
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "offers-2025-03-09.csv", Filename(at))
}
