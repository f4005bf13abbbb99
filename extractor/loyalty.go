package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/use-agent/offersync/models"
)

// maxLabelScope bounds how far the search for a tier widens from a program label.
const (
	maxLabelScope = 2000
	labelClimb    = 4
)

// Loyalty reads tier names and point balances off the loyalty programs page.
type Loyalty struct {
	programs []tierMatcher
	points   *regexp.Regexp
}

type tierMatcher struct {
	brand     models.Brand
	key       string
	labels    []string
	tiers     *regexp.Regexp
	canonical map[string]string
}

// ProgramStatus is one program's entry in the loyalty payload.
type ProgramStatus struct {
	Tier   string `json:"tier"`
	Points string `json:"points"`
}

// NewLoyalty compiles the tier vocabularies.
func NewLoyalty(v models.LoyaltyVocabulary) (*Loyalty, error) {
	l := &Loyalty{}
	for _, p := range v.Programs {
		re, err := phraseRegexp(p.Tiers)
		if err != nil {
			return nil, fmt.Errorf("tiers for %s: %w", p.Key, err)
		}
		canonical := make(map[string]string, len(p.Tiers))
		for _, t := range p.Tiers {
			canonical[strings.ToLower(t)] = t
		}
		l.programs = append(l.programs, tierMatcher{
			brand:     models.Brand(p.Brand),
			key:       p.Key,
			labels:    p.Labels,
			tiers:     re,
			canonical: canonical,
		})
	}
	if v.Points != "" {
		re, err := regexp.Compile(v.Points)
		if err != nil {
			return nil, fmt.Errorf("points pattern: %w", err)
		}
		l.points = re
	}
	return l, nil
}

// Extract returns {"<programKey>": {"tier": "...", "points": "..."}} for every
// program of the snapshot's brand. Unmatched fields are empty strings.
func (l *Loyalty) Extract(ctx context.Context, snap *Snapshot) (*Result, error) {
	d := &diagnostics{ctx: ctx}
	p, err := parsePage(snap.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse loyalty page: %w", err)
	}
	body := p.doc.Find("body")
	if body.Length() == 0 {
		return nil, fmt.Errorf("parse loyalty page: no body")
	}
	pageText := p.textOf(body.Get(0))
	elements := p.elements()

	out := make(map[string]ProgramStatus)
	partial := false
	for _, prog := range l.programs {
		if prog.brand != snap.Brand && prog.brand != "" {
			continue
		}
		scopes := l.scopes(p, elements, prog.labels)
		scopes = append(scopes, pageText)

		var st ProgramStatus
		for _, scope := range scopes {
			if m := prog.tiers.FindString(scope); m != "" {
				st.Tier = prog.canonical[strings.ToLower(m)]
				st.Points = l.pointsIn(scope)
				break
			}
		}
		if st.Tier == "" {
			partial = true
			d.add(slog.LevelInfo, "tier_not_found", "no tier matched", "program", prog.key)
		} else {
			d.add(slog.LevelDebug, "tier_found", "tier matched", "program", prog.key, "tier", st.Tier)
		}
		out[prog.key] = st
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &Result{Payload: payload, Diagnostics: d.items, Partial: partial}, nil
}

// scopes returns text blocks around the smallest elements naming a program,
// from the tightest outward.
func (l *Loyalty) scopes(p *page, elements []*html.Node, labels []string) []string {
	var label *html.Node
	labelLen := 0
	for _, el := range elements {
		t := p.textOf(el)
		if !containsAnyFold(t, labels) {
			continue
		}
		if n := utf8.RuneCountInString(t); label == nil || n < labelLen {
			label, labelLen = el, n
		}
	}
	if label == nil {
		return nil
	}

	var out []string
	for n, i := label, 0; n != nil && i <= labelClimb; n, i = n.Parent, i+1 {
		if n.Type != html.ElementNode {
			break
		}
		t := p.textOf(n)
		if utf8.RuneCountInString(t) > maxLabelScope {
			break
		}
		out = append(out, t)
	}
	return out
}

func (l *Loyalty) pointsIn(text string) string {
	if l.points == nil {
		return ""
	}
	m := l.points.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.ReplaceAll(m[1], ",", "")
}

func containsAnyFold(s string, subs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
