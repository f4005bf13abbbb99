package models

// Vocabulary is the tunable word list behind the DOM heuristics. The sites
// change their markup without notice, so all of it is data rather than code.
type Vocabulary struct {
	Offers  OfferVocabulary   `toml:"offers" mapstructure:"offers"`
	Loyalty LoyaltyVocabulary `toml:"loyalty" mapstructure:"loyalty"`
	Session SessionVocabulary `toml:"session" mapstructure:"session"`
}

// OfferVocabulary drives the offer card extractor.
type OfferVocabulary struct {
	// CodePatterns maps a brand to the regular expression matching its offer codes.
	CodePatterns map[string]string `toml:"code_patterns" mapstructure:"code_patterns"`

	// RoomTypes are the phrases that identify the cabin category of a card.
	RoomTypes []string `toml:"room_types" mapstructure:"room_types"`

	// RedeemBy matches the "redeem by <date>" phrase. The first submatch is the date.
	RedeemBy string `toml:"redeem_by" mapstructure:"redeem_by"`

	// Actions are the labels of the control that opens an offer's sailings.
	Actions []string `toml:"actions" mapstructure:"actions"`

	MinCardText  int `toml:"min_card_text" mapstructure:"min_card_text"`
	MaxCardText  int `toml:"max_card_text" mapstructure:"max_card_text"`
	AncestorWalk int `toml:"ancestor_walk" mapstructure:"ancestor_walk"`
}

// LoyaltyVocabulary lists the tier programs recognised on the loyalty page.
type LoyaltyVocabulary struct {
	Programs []TierProgram `toml:"programs" mapstructure:"programs"`

	// Points matches a points balance. The first submatch is the number.
	Points string `toml:"points" mapstructure:"points"`
}

// TierProgram is one loyalty program and its tier names.
type TierProgram struct {
	Brand  string   `toml:"brand" mapstructure:"brand"`
	Key    string   `toml:"key" mapstructure:"key"`
	Labels []string `toml:"labels" mapstructure:"labels"`
	Tiers  []string `toml:"tiers" mapstructure:"tiers"`
}

// SessionVocabulary drives the logged-in detector.
type SessionVocabulary struct {
	AccountPaths  []string `toml:"account_paths" mapstructure:"account_paths"`
	LogoutPhrases []string `toml:"logout_phrases" mapstructure:"logout_phrases"`
	Keywords      []string `toml:"keywords" mapstructure:"keywords"`
	Greeting      string   `toml:"greeting" mapstructure:"greeting"`
	CookieMarkers []string `toml:"cookie_markers" mapstructure:"cookie_markers"`
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Offers: OfferVocabulary{
			CodePatterns: map[string]string{
				string(BrandRoyal):     `\b\d{2}[A-Z]{2,4}\d{2,4}[A-Z]?\b`,
				string(BrandCelebrity): `\b\d{2}[A-Z]{2,4}\d{2,4}[A-Z]?\b`,
			},
			RoomTypes: []string{
				"Junior Suite", "Grand Suite", "Suite", "Balcony", "Ocean View",
				"Oceanview", "Interior", "Inside", "Veranda", "Concierge", "Aqua",
			},
			RedeemBy: `(?i)redeem\s+by[:\s]+([A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}/\d{1,2}/\d{2,4})`,
			Actions: []string{
				"View Sailings", "View Sailing", "See Sailings", "Select Sailing", "View Offer",
			},
			MinCardText:  100,
			MaxCardText:  5000,
			AncestorWalk: 15,
		},
		Loyalty: LoyaltyVocabulary{
			Programs: []TierProgram{
				{
					Brand:  string(BrandRoyal),
					Key:    "crownAndAnchor",
					Labels: []string{"Crown & Anchor", "Crown and Anchor"},
					Tiers:  []string{"Pinnacle Club", "Diamond Plus", "Diamond", "Emerald", "Platinum", "Gold"},
				},
				{
					Brand:  string(BrandRoyal),
					Key:    "clubRoyale",
					Labels: []string{"Club Royale"},
					Tiers:  []string{"Masters", "Signature", "Prime", "Choice"},
				},
				{
					Brand:  string(BrandCelebrity),
					Key:    "captainsClub",
					Labels: []string{"Captain's Club", "Captains Club"},
					Tiers:  []string{"Zenith", "Elite Plus", "Elite", "Select", "Classic", "Preview"},
				},
				{
					Brand:  string(BrandCelebrity),
					Key:    "blueChip",
					Labels: []string{"Blue Chip"},
					Tiers:  []string{"Onyx", "Sapphire Plus", "Sapphire", "Ruby", "Pearl"},
				},
			},
			Points: `(?i)(\d[\d,]*)\s*(?:tier\s+)?(?:points|credits)`,
		},
		Session: SessionVocabulary{
			AccountPaths:  []string{"/account/upcoming-cruises", "/account/loyalty-programs", "/account/courtesy-holds", "/account/profile"},
			LogoutPhrases: []string{"sign out", "log out", "logout", "signout"},
			Keywords:      []string{"my account", "upcoming cruises", "my cruises", "loyalty number", "courtesy holds", "my offers"},
			Greeting:      `(?i)\b(?:hi|hello|welcome back|ahoy),?\s+[A-Z][a-z]+`,
			CookieMarkers: []string{"access_token", "auth", "session", "jwt", "id_token"},
		},
	}
}

// Merge extends v with the non-empty parts of other. Lists are appended
// without duplicates, scalars and patterns are replaced.
func (v Vocabulary) Merge(other Vocabulary) Vocabulary {
	out := v
	out.Offers.CodePatterns = make(map[string]string, len(v.Offers.CodePatterns))
	for k, p := range v.Offers.CodePatterns {
		out.Offers.CodePatterns[k] = p
	}
	for k, p := range other.Offers.CodePatterns {
		out.Offers.CodePatterns[k] = p
	}
	out.Offers.RoomTypes = appendUnique(v.Offers.RoomTypes, other.Offers.RoomTypes)
	out.Offers.Actions = appendUnique(v.Offers.Actions, other.Offers.Actions)
	out.Offers.RedeemBy = orString(other.Offers.RedeemBy, v.Offers.RedeemBy)
	out.Offers.MinCardText = orInt(other.Offers.MinCardText, v.Offers.MinCardText)
	out.Offers.MaxCardText = orInt(other.Offers.MaxCardText, v.Offers.MaxCardText)
	out.Offers.AncestorWalk = orInt(other.Offers.AncestorWalk, v.Offers.AncestorWalk)

	out.Loyalty.Programs = append([]TierProgram(nil), v.Loyalty.Programs...)
	for _, p := range other.Loyalty.Programs {
		merged := false
		for i := range out.Loyalty.Programs {
			cur := &out.Loyalty.Programs[i]
			if cur.Brand == p.Brand && cur.Key == p.Key {
				cur.Labels = appendUnique(cur.Labels, p.Labels)
				cur.Tiers = appendUnique(cur.Tiers, p.Tiers)
				merged = true
				break
			}
		}
		if !merged {
			out.Loyalty.Programs = append(out.Loyalty.Programs, p)
		}
	}
	out.Loyalty.Points = orString(other.Loyalty.Points, v.Loyalty.Points)

	out.Session.AccountPaths = appendUnique(v.Session.AccountPaths, other.Session.AccountPaths)
	out.Session.LogoutPhrases = appendUnique(v.Session.LogoutPhrases, other.Session.LogoutPhrases)
	out.Session.Keywords = appendUnique(v.Session.Keywords, other.Session.Keywords)
	out.Session.CookieMarkers = appendUnique(v.Session.CookieMarkers, other.Session.CookieMarkers)
	out.Session.Greeting = orString(other.Session.Greeting, v.Session.Greeting)
	return out
}

func appendUnique(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func orString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func orInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
