package extractor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/offersync/models"
)

func extractLoyalty(t *testing.T, brand models.Brand, html string) (map[string]ProgramStatus, *Result) {
	t.Helper()
	l, err := NewLoyalty(models.DefaultVocabulary().Loyalty)
	require.NoError(t, err)
	res, err := l.Extract(context.Background(), &Snapshot{HTML: html, Brand: brand})
	require.NoError(t, err)
	var out map[string]ProgramStatus
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out, res
}

func TestLoyalty_RoyalPrograms(t *testing.T) {
	html := `<html><body>
<section class="program"><h2>Crown &amp; Anchor Society</h2><p>Your tier: Diamond Plus</p><p>82 tier points</p></section>
<section class="program"><h2>Club Royale</h2><p>Status: Prime</p><p>1,250 tier credits</p></section>
</body></html>`

	out, res := extractLoyalty(t, models.BrandRoyal, html)
	assert.Equal(t, ProgramStatus{Tier: "Diamond Plus", Points: "82"}, out["crownAndAnchor"])
	assert.Equal(t, ProgramStatus{Tier: "Prime", Points: "1250"}, out["clubRoyale"])
	assert.NotContains(t, out, "captainsClub")
	assert.False(t, res.Partial)
}

func TestLoyalty_CaseInsensitiveCanonicalTier(t *testing.T) {
	html := `<html><body><div><h3>CLUB ROYALE</h3><span>SIGNATURE member</span></div></body></html>`
	out, _ := extractLoyalty(t, models.BrandRoyal, html)
	assert.Equal(t, "Signature", out["clubRoyale"].Tier)
}

func TestLoyalty_NoMatchYieldsEmptyStrings(t *testing.T) {
	html := `<html><body><p>Sign in to see your loyalty status.</p></body></html>`
	out, res := extractLoyalty(t, models.BrandCelebrity, html)

	require.Contains(t, out, "captainsClub")
	require.Contains(t, out, "blueChip")
	assert.Equal(t, ProgramStatus{}, out["captainsClub"])
	assert.Equal(t, ProgramStatus{}, out["blueChip"])
	assert.True(t, res.Partial)
}

func TestLoyalty_CelebrityLongestTierFirst(t *testing.T) {
	html := `<html><body>
<div><h2>Captain's Club</h2><p>Elite Plus</p></div>
<div><h2>Blue Chip Club</h2><p>Sapphire Plus</p><p>3,400 points</p></div>
</body></html>`
	out, _ := extractLoyalty(t, models.BrandCelebrity, html)
	assert.Equal(t, "Elite Plus", out["captainsClub"].Tier)
	assert.Equal(t, ProgramStatus{Tier: "Sapphire Plus", Points: "3400"}, out["blueChip"])
}
