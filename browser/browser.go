// Package browser drives the Chrome tab the user is logged in with. It
// implements the orchestrator's Navigator and feeds captured payloads and
// session verdicts back through the relay.
package browser

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/offersync/config"
	"github.com/use-agent/offersync/detector"
	"github.com/use-agent/offersync/extractor"
	"github.com/use-agent/offersync/models"
)

// Poster accepts messages for the orchestrator. Post must not block.
type Poster interface {
	Post(env models.Envelope) bool
}

// Options wires a Browser to the rest of the service.
type Options struct {
	Browser   config.BrowserConfig
	Extractor config.ExtractorConfig
	Detector  config.DetectorConfig

	// CaptureWindow bounds how long a step keeps listening after navigation.
	CaptureWindow time.Duration

	Registry *extractor.Registry
	Session  *detector.Detector
	Relay    Poster
}

type tab struct {
	id     int
	page   *rod.Page
	cancel context.CancelFunc // current capture, if any
}

// Browser owns the Chrome connection and the registry of controlled tabs.
// It is safe for concurrent use.
type Browser struct {
	rod      *rod.Browser
	launched bool
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tabs   map[int]*tab
	nextID int
	active int
}

// New launches Chrome, or attaches to the one at ControlURL, and registers
// its open pages as tabs.
func New(opts Options) (*Browser, error) {
	if opts.CaptureWindow <= 0 {
		opts.CaptureWindow = 30 * time.Second
	}
	cfg := opts.Browser

	controlURL := cfg.ControlURL
	launched := false
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)
		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.Proxy != "" {
			l = l.Proxy(cfg.Proxy)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "TranslateUI")
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("no-first-run"))

		u, err := l.Launch()
		if err != nil {
			return nil, models.NewSyncError(models.ErrCodeBrowser, "failed to launch browser", err)
		}
		controlURL, launched = u, true
		slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		return nil, models.NewSyncError(models.ErrCodeBrowser, "failed to connect to browser", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		rod:      rb,
		launched: launched,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		tabs:     make(map[int]*tab),
	}

	pages, err := rb.Pages()
	if err != nil {
		slog.Warn("could not list open pages", "error", err)
	}
	for _, p := range pages {
		b.register(p)
	}
	slog.Info("browser connected", "tabs", len(pages), "attached", !launched)
	return b, nil
}

// register prepares a page and gives it the next tab ID.
func (b *Browser) register(p *rod.Page) *tab {
	if b.opts.Browser.Stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if err := blockResources(p, b.opts.Browser.BlockedResourceTypes); err != nil {
		slog.Debug("resource blocking unavailable", "error", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	t := &tab{id: b.nextID, page: p}
	b.tabs[t.id] = t
	b.active = t.id
	slog.Debug("tab registered", "tabId", t.id, "target", p.TargetID)
	return t
}

func (b *Browser) tab(id int) (*tab, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	return t, ok
}

// Tabs returns the registered tab IDs in order.
func (b *Browser) Tabs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int, 0, len(b.tabs))
	for id := range b.tabs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Connected reports whether the browser still answers.
func (b *Browser) Connected() bool {
	_, err := proto.BrowserGetVersion{}.Call(b.rod)
	return err == nil
}

// Close stops every capture. A launched Chrome is closed; an attached one
// is left running for the user.
func (b *Browser) Close() {
	b.cancel()
	b.mu.Lock()
	for _, t := range b.tabs {
		if t.cancel != nil {
			t.cancel()
		}
	}
	b.mu.Unlock()

	if !b.launched {
		slog.Info("detached from browser")
		return
	}
	if err := b.rod.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser shut down")
}
