package orchestrator

import (
	"encoding/json"

	"github.com/ysmood/gson"

	"github.com/use-agent/offersync/models"
)

// Paths searched, in order, for the list inside each captured payload.
var (
	offerListPaths  = [][]any{{"offers"}, {"payload", "offers"}, {"data", "offers"}}
	cruiseListPaths = [][]any{{"payload", "sailingInfo"}, {"payload", "profileBookings"}, {"upcomingCruises"}, {"bookings"}, {"cruises"}, {"data"}}
	holdListPaths   = [][]any{{"payload", "holds"}, {"payload", "courtesyHolds"}, {"courtesyHolds"}, {"holds"}, {"data"}}
)

// Summarize counts what a run captured. Keys that were never captured are
// listed as skipped.
func Summarize(steps []models.StepDefinition, captured map[string]json.RawMessage) models.Summary {
	var s models.Summary
	for _, step := range steps {
		raw := captured[step.DataKey]
		if len(raw) == 0 {
			s.SkippedSteps = append(s.SkippedSteps, step.DataKey)
			continue
		}
		s.CapturedSteps++
	}

	s.Offers = listLen(captured["offers"], offerListPaths)
	s.UpcomingCruises = listLen(captured["upcomingCruises"], cruiseListPaths)
	s.CourtesyHolds = listLen(captured["courtesyHolds"], holdListPaths)
	if raw := captured["loyalty"]; len(raw) > 0 {
		j := gson.New([]byte(raw))
		s.LoyaltyCaptured = !j.Nil()
	}
	return s
}

// listLen returns the length of the first array found at paths, or of the
// payload itself when it is an array.
func listLen(raw json.RawMessage, paths [][]any) int {
	if len(raw) == 0 {
		return 0
	}
	j := gson.New([]byte(raw))
	if arr, ok := j.Val().([]any); ok {
		return len(arr)
	}
	for _, p := range paths {
		v, ok := j.Gets(p...)
		if !ok {
			continue
		}
		if arr, ok := v.Val().([]any); ok {
			return len(arr)
		}
	}
	return 0
}
