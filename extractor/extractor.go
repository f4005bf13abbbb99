// Package extractor turns a rendered page snapshot into the JSON payload for
// one sync step. Extractors are looked up per brand and data key, so the
// heuristics for one site can change without touching the orchestrator.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/use-agent/offersync/models"
)

// Snapshot is a rendered page handed to an extractor.
type Snapshot struct {
	URL   string
	HTML  string
	Brand models.Brand

	// ExpectedCount is how many items the page claims to hold. Zero means
	// unknown.
	ExpectedCount int
}

// Result is an extractor's output. Payload is always valid JSON.
type Result struct {
	Payload     json.RawMessage
	Diagnostics []models.Diagnostic
	Partial     bool
}

// Extractor produces the payload of one step from a snapshot. An extractor
// that finds nothing returns an empty payload, not an error.
type Extractor interface {
	Extract(ctx context.Context, snap *Snapshot) (*Result, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, snap *Snapshot) (*Result, error)

func (f Func) Extract(ctx context.Context, snap *Snapshot) (*Result, error) {
	return f(ctx, snap)
}

type registryKey struct {
	brand   models.Brand
	dataKey string
}

// Registry maps (brand, data key) to an extractor. Entries registered
// without a brand serve every brand.
type Registry struct {
	entries map[registryKey]Extractor
}

// NewRegistry returns a registry with the built-in extractors configured
// from vocab.
func NewRegistry(vocab models.Vocabulary) (*Registry, error) {
	offers, err := NewOffers(vocab.Offers)
	if err != nil {
		return nil, err
	}
	loyalty, err := NewLoyalty(vocab.Loyalty)
	if err != nil {
		return nil, err
	}

	r := &Registry{entries: make(map[registryKey]Extractor)}
	r.Register("", "offers", offers)
	r.Register("", "loyalty", loyalty)
	r.Register("", "upcomingCruises", EmbeddedJSON{})
	r.Register("", "courtesyHolds", EmbeddedJSON{})
	return r, nil
}

// Register adds or replaces an extractor. An empty brand matches any brand.
func (r *Registry) Register(brand models.Brand, dataKey string, e Extractor) {
	r.entries[registryKey{brand: brand, dataKey: dataKey}] = e
}

// Lookup returns the brand-specific extractor for dataKey, falling back to
// the brand-agnostic one.
func (r *Registry) Lookup(brand models.Brand, dataKey string) (Extractor, bool) {
	if e, ok := r.entries[registryKey{brand: brand, dataKey: dataKey}]; ok {
		return e, true
	}
	e, ok := r.entries[registryKey{dataKey: dataKey}]
	return e, ok
}

// Extract runs the extractor registered for dataKey. The snapshot's brand is
// detected from its URL when unset.
func (r *Registry) Extract(ctx context.Context, dataKey string, snap *Snapshot) (*Result, error) {
	if snap.Brand == "" {
		snap.Brand = brandFromURL(snap.URL)
	}
	e, ok := r.Lookup(snap.Brand, dataKey)
	if !ok {
		return nil, models.NewSyncError(models.ErrCodeInvalidInput,
			fmt.Sprintf("no extractor for data key %q", dataKey), nil)
	}
	res, err := e.Extract(ctx, snap)
	if err != nil {
		return nil, models.NewSyncError(models.ErrCodeExtraction,
			fmt.Sprintf("extracting %s", dataKey), err)
	}
	return res, nil
}

func brandFromURL(raw string) models.Brand {
	u, err := url.Parse(raw)
	if err != nil {
		return models.BrandRoyal
	}
	return models.DetectBrand(u.Hostname())
}

// diagnostics logs each finding with slog and keeps a copy for the caller.
type diagnostics struct {
	ctx   context.Context
	items []models.Diagnostic
}

func (d *diagnostics) add(level slog.Level, code, msg string, args ...any) {
	slog.Log(d.ctx, level, msg, append([]any{"code", code}, args...)...)

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	d.items = append(d.items, models.Diagnostic{
		Level:   strings.ToLower(level.String()),
		Code:    code,
		Message: b.String(),
	})
}
