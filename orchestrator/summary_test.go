package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		captured map[string]json.RawMessage
		offers   int
		cruises  int
		holds    int
		loyalty  bool
		skipped  []string
	}{
		{
			name:     "nothing captured",
			captured: map[string]json.RawMessage{},
			skipped:  []string{"offers", "upcomingCruises", "courtesyHolds", "loyalty"},
		},
		{
			name: "api shapes",
			captured: map[string]json.RawMessage{
				"offers":          json.RawMessage(`{"offers":[{},{}]}`),
				"upcomingCruises": json.RawMessage(`{"payload":{"profileBookings":[{},{},{}]}}`),
				"courtesyHolds":   json.RawMessage(`{"payload":{"holds":[]}}`),
				"loyalty":         json.RawMessage(`{"crownAndAnchor":{"tier":"Diamond"}}`),
			},
			offers:  2,
			cruises: 3,
			loyalty: true,
		},
		{
			name: "bare arrays and null loyalty",
			captured: map[string]json.RawMessage{
				"upcomingCruises": json.RawMessage(`[{}]`),
				"courtesyHolds":   json.RawMessage(`[{},{}]`),
				"loyalty":         json.RawMessage(`null`),
			},
			cruises: 1,
			holds:   2,
			skipped: []string{"offers"},
		},
		{
			name: "unexpected shape counts as zero",
			captured: map[string]json.RawMessage{
				"offers": json.RawMessage(`{"items":[1,2,3]}`),
			},
			skipped: []string{"upcomingCruises", "courtesyHolds", "loyalty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(DefaultSteps(), tt.captured)
			assert.Equal(t, tt.offers, s.Offers)
			assert.Equal(t, tt.cruises, s.UpcomingCruises)
			assert.Equal(t, tt.holds, s.CourtesyHolds)
			assert.Equal(t, tt.loyalty, s.LoyaltyCaptured)
			assert.Equal(t, tt.skipped, s.SkippedSteps)
			assert.Equal(t, 4-len(tt.skipped), s.CapturedSteps)
		})
	}
}

func TestStepURL(t *testing.T) {
	steps := DefaultSteps()
	assert.Equal(t, "https://www.royalcaribbean.com/club-royale/offers", StepURL("royal", steps[0]))
	assert.Equal(t, "https://www.celebritycruises.com/blue-chip-club/offers", StepURL("celebrity", steps[0]))
	assert.Equal(t, "https://www.celebritycruises.com/account/courtesy-holds", StepURL("celebrity", steps[2]))
}
