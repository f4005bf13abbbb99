package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// embeddedSelectors are the script tags that carry server-rendered state, in
// the order they are tried.
var embeddedSelectors = []string{
	`script#__NEXT_DATA__`,
	`script[type="application/json"]`,
	`script[type="application/ld+json"]`,
}

// EmbeddedJSON returns the first valid JSON blob embedded in the page. It is
// used for steps whose data is rendered into the page instead of fetched.
type EmbeddedJSON struct{}

func (EmbeddedJSON) Extract(ctx context.Context, snap *Snapshot) (*Result, error) {
	d := &diagnostics{ctx: ctx}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	for _, sel := range embeddedSelectors {
		var found json.RawMessage
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			raw := strings.TrimSpace(s.Text())
			if raw == "" || !json.Valid([]byte(raw)) {
				return true
			}
			found = json.RawMessage(raw)
			return false
		})
		if found != nil {
			d.add(slog.LevelDebug, "embedded_json", "embedded state found", "selector", sel, "bytes", len(found))
			return &Result{Payload: found, Diagnostics: d.items}, nil
		}
	}

	d.add(slog.LevelWarn, "embedded_json_missing", "no embedded state in page", "url", snap.URL)
	return &Result{Payload: json.RawMessage(`{}`), Diagnostics: d.items, Partial: true}, nil
}
