package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/use-agent/offersync/detector"
	"github.com/use-agent/offersync/models"
)

// mutationThreshold is the SimHash distance counted as a DOM change.
const mutationThreshold = 3

// watchSession runs the session detector against a tab for the detector's
// lifetime. A DOM fingerprint poll triggers extra checks when the page
// changes between ticks.
func (b *Browser) watchSession(ctx context.Context, page *rod.Page) {
	p := page.Context(ctx)
	source := func(ctx context.Context) (detector.Signals, error) {
		markup, err := p.HTML()
		if err != nil {
			return detector.Signals{}, err
		}
		var names []string
		if cookies, err := p.Cookies(nil); err == nil {
			for _, c := range cookies {
				names = append(names, c.Name)
			}
		}
		return b.opts.Session.SignalsFromHTML(markup, names)
	}

	w := detector.NewWatcher(source, b.publishSession, b.opts.Detector.Lifetime, b.opts.Detector.Interval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go pollMutations(ctx, p, b.opts.Browser.MutationPollInterval, w.Recheck)

	v := w.Run(ctx)
	slog.Debug("session watch finished", "loggedIn", v.LoggedIn, "score", v.Score)
}

func (b *Browser) publishSession(v models.SessionVerdict) {
	if b.opts.Relay == nil {
		return
	}
	b.opts.Relay.Post(models.Envelope{Type: models.MsgSessionState, Session: &v})
}

// pollMutations samples the page markup and calls changed when its
// structure moves.
func pollMutations(ctx context.Context, p *rod.Page, interval time.Duration, changed func()) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			markup, err := p.HTML()
			if err != nil {
				continue
			}
			fp := fingerprintDOM(markup)
			if last != 0 && mutated(last, fp, mutationThreshold) {
				changed()
			}
			last = fp
		}
	}
}
