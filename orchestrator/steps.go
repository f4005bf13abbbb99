package orchestrator

import "github.com/use-agent/offersync/models"

// DefaultSteps is the fixed step sequence of a sync run.
func DefaultSteps() []models.StepDefinition {
	return []models.StepDefinition{
		{
			Name: "Casino Offers",
			Paths: map[models.Brand]string{
				models.BrandRoyal:     "/club-royale/offers",
				models.BrandCelebrity: "/blue-chip-club/offers",
			},
			WaitFor: "/api/casino/casino-offers",
			DataKey: "offers",
			Source:  models.SourceNetwork,
		},
		{
			Name:    "Upcoming Cruises",
			Paths:   map[models.Brand]string{models.BrandRoyal: "/account/upcoming-cruises"},
			WaitFor: "/api/profile/bookings",
			DataKey: "upcomingCruises",
			Source:  models.SourceNetwork,
		},
		{
			Name:    "Courtesy Holds",
			Paths:   map[models.Brand]string{models.BrandRoyal: "/account/courtesy-holds"},
			WaitFor: "/api/courtesy-holds",
			DataKey: "courtesyHolds",
			Source:  models.SourceNetwork,
		},
		{
			Name:    "Loyalty Status",
			Paths:   map[models.Brand]string{models.BrandRoyal: "/account/loyalty-programs"},
			WaitFor: "/account/loyalty-programs",
			DataKey: "loyalty",
			Source:  models.SourceDOM,
		},
	}
}

// StepURL is the absolute URL a step navigates to for the given brand.
func StepURL(b models.Brand, s models.StepDefinition) string {
	return b.BaseURL() + s.Path(b)
}
