package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/offersync/models"
)

// controlSelector matches anything a user can click to open an offer.
const controlSelector = `a, button, [role="button"], [role="link"]`

// Offers finds offer cards on a rendered offers page.
//
// Primary phase: every offer code in the markup is matched to the smallest
// element whose text holds that code and no other, and the element must
// carry all four parts of a card (code, room type, redeem-by date, action
// control). Fallback phase, only when fewer cards than expected were found:
// each action control walks up its ancestors and takes the first one that
// passes the same four-part test.
type Offers struct {
	codes    map[models.Brand]*regexp.Regexp
	room     *regexp.Regexp
	redeem   *regexp.Regexp
	action   *regexp.Regexp
	controls cascadia.SelectorGroup

	minText int
	maxText int
	walk    int
}

// NewOffers compiles an offer extractor from its vocabulary.
func NewOffers(v models.OfferVocabulary) (*Offers, error) {
	o := &Offers{
		codes:   make(map[models.Brand]*regexp.Regexp),
		minText: v.MinCardText,
		maxText: v.MaxCardText,
		walk:    v.AncestorWalk,
	}
	for brand, pattern := range v.CodePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("offer code pattern for %s: %w", brand, err)
		}
		o.codes[models.Brand(brand)] = re
	}
	if _, ok := o.codes[models.BrandRoyal]; !ok {
		return nil, fmt.Errorf("offer vocabulary has no code pattern for %s", models.BrandRoyal)
	}

	var err error
	if o.room, err = phraseRegexp(v.RoomTypes); err != nil {
		return nil, fmt.Errorf("room types: %w", err)
	}
	if o.action, err = phraseRegexp(v.Actions); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	if o.redeem, err = regexp.Compile(v.RedeemBy); err != nil {
		return nil, fmt.Errorf("redeem-by pattern: %w", err)
	}
	if o.controls, err = cascadia.ParseGroup(controlSelector); err != nil {
		return nil, err
	}
	if o.minText <= 0 {
		o.minText = 100
	}
	if o.maxText <= 0 {
		o.maxText = 5000
	}
	if o.walk <= 0 {
		o.walk = 15
	}
	return o, nil
}

// phraseRegexp builds a case-insensitive alternation of literal phrases,
// longest first, so "Junior Suite" wins over "Suite".
func phraseRegexp(phrases []string) (*regexp.Regexp, error) {
	if len(phrases) == 0 {
		return nil, fmt.Errorf("empty phrase list")
	}
	sorted := append([]string(nil), phrases...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, p := range sorted {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func (o *Offers) codeFor(b models.Brand) *regexp.Regexp {
	if re, ok := o.codes[b]; ok {
		return re
	}
	return o.codes[models.BrandRoyal]
}

func (o *Offers) Extract(ctx context.Context, snap *Snapshot) (*Result, error) {
	d := &diagnostics{ctx: ctx}
	p, err := parsePage(snap.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse offers page: %w", err)
	}

	codeRe := o.codeFor(snap.Brand)
	codes := uniqueMatches(codeRe, snap.HTML)
	d.add(slog.LevelInfo, "codes_scanned", "offer codes scanned", "brand", snap.Brand, "codes", len(codes))

	elements := p.elements()
	found := make(map[string]bool, len(codes))
	cards := make([]models.OfferCard, 0, len(codes))

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		el := o.smallestHolding(p, elements, codeRe, code)
		if el == nil {
			d.add(slog.LevelDebug, "no_card_element", "no card-sized element holds code", "code", code)
			continue
		}
		card, missing := o.validate(p, el, code, snap.URL)
		if len(missing) > 0 {
			d.add(slog.LevelWarn, "candidate_rejected", "offer candidate rejected",
				"code", code, "missing", strings.Join(missing, ","))
			continue
		}
		card.Phase = "primary"
		cards = append(cards, card)
		found[code] = true
		d.add(slog.LevelDebug, "candidate_accepted", "offer card accepted", "code", code, "phase", "primary")
	}
	primary := len(cards)

	// Without a count from the page, every code visible in the body is
	// expected to be a card. Codes only present in scripts or attributes
	// do not count.
	expected := snap.ExpectedCount
	if expected <= 0 {
		if body := p.doc.Find("body"); body.Length() > 0 {
			expected = len(uniqueMatches(codeRe, p.textOf(body.Get(0))))
		}
	}
	if expected > 0 && len(cards) < expected {
		cards = append(cards, o.fallback(ctx, p, codeRe, snap.URL, found, d)...)
	}

	level := slog.LevelInfo
	if len(cards) < expected {
		level = slog.LevelWarn
	}
	d.add(level, "offers_summary", "offer extraction finished",
		"found", len(cards), "expected", expected, "primary", primary, "fallback", len(cards)-primary)

	payload, err := json.Marshal(struct {
		Offers []models.OfferCard `json:"offers"`
	}{Offers: cards})
	if err != nil {
		return nil, err
	}
	return &Result{
		Payload:     payload,
		Diagnostics: d.items,
		Partial:     len(cards) < expected,
	}, nil
}

// smallestHolding returns the element with the shortest text inside the
// card-size window that contains code and no other offer code.
func (o *Offers) smallestHolding(p *page, elements []*html.Node, codeRe *regexp.Regexp, code string) *html.Node {
	var best *html.Node
	bestLen := 0
	for _, el := range elements {
		t := p.textOf(el)
		n := utf8.RuneCountInString(t)
		if n < o.minText || n > o.maxText || !strings.Contains(t, code) {
			continue
		}
		if !onlyCode(codeRe, t, code) {
			continue
		}
		if best == nil || n < bestLen || (n == bestLen && depth(el) > depth(best)) {
			best, bestLen = el, n
		}
	}
	return best
}

// fallback anchors on action controls and walks up to find the card around
// each one. Codes already found are skipped.
func (o *Offers) fallback(ctx context.Context, p *page, codeRe *regexp.Regexp, pageURL string, found map[string]bool, d *diagnostics) []models.OfferCard {
	var cards []models.OfferCard
	anchors := o.actionControls(p, p.doc.Nodes[0])
	d.add(slog.LevelInfo, "fallback_started", "offer fallback started", "anchors", len(anchors))

	for _, anchor := range anchors {
		if ctx.Err() != nil {
			break
		}
		n := anchor.Parent
		for level := 1; n != nil && level <= o.walk; level, n = level+1, n.Parent {
			if n.Type != html.ElementNode {
				break
			}
			t := p.textOf(n)
			if utf8.RuneCountInString(t) > o.maxText {
				break
			}
			inText := uniqueMatches(codeRe, t)
			if len(inText) == 0 {
				continue
			}
			if len(inText) > 1 || found[inText[0]] {
				break
			}
			code := inText[0]
			card, missing := o.validate(p, n, code, pageURL)
			if len(missing) > 0 {
				d.add(slog.LevelDebug, "fallback_rejected", "fallback ancestor rejected",
					"code", code, "level", level, "missing", strings.Join(missing, ","))
				continue
			}
			card.Phase = "fallback"
			found[code] = true
			cards = append(cards, card)
			d.add(slog.LevelInfo, "candidate_accepted", "offer card accepted",
				"code", code, "phase", "fallback", "level", level)
			break
		}
	}
	return cards
}

// validate checks the four parts of a card on el and reports what is missing.
func (o *Offers) validate(p *page, el *html.Node, code, pageURL string) (models.OfferCard, []string) {
	t := p.textOf(el)
	card := models.OfferCard{OfferCode: code, Text: t}
	var missing []string

	if !strings.Contains(t, code) {
		missing = append(missing, "code")
	}
	if card.RoomType = o.room.FindString(t); card.RoomType == "" {
		missing = append(missing, "room_type")
	}
	if m := o.redeem.FindStringSubmatch(t); m != nil {
		card.RedeemBy = m[0]
		if len(m) > 1 && m[1] != "" {
			card.RedeemBy = m[1]
		}
	} else {
		missing = append(missing, "redeem_by")
	}
	controls := o.actionControls(p, el)
	if len(controls) == 0 {
		missing = append(missing, "action")
	} else {
		card.SailingsURL = resolveHref(pageURL, controlHref(controls[0]))
	}
	return card, missing
}

// actionControls returns the clickable elements under root whose label is
// one of the action phrases.
func (o *Offers) actionControls(p *page, root *html.Node) []*html.Node {
	var out []*html.Node
	for _, n := range cascadia.QueryAll(root, o.controls) {
		label := p.textOf(n)
		if label == "" {
			label = attr(n, "aria-label")
		}
		if o.action.MatchString(label) {
			out = append(out, n)
		}
	}
	return out
}

func controlHref(n *html.Node) string {
	if h := attr(n, "href"); h != "" && !strings.HasPrefix(h, "javascript:") {
		return h
	}
	return attr(n, "data-href")
}

func resolveHref(base, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return href
	}
	return b.ResolveReference(ref).String()
}

// onlyCode reports whether every offer code in text is code.
func onlyCode(codeRe *regexp.Regexp, text, code string) bool {
	for _, m := range codeRe.FindAllString(text, -1) {
		if m != code {
			return false
		}
	}
	return true
}

func uniqueMatches(re *regexp.Regexp, s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(s, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
