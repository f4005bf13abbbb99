package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/offersync/models"
)

// Source samples the page for signals.
type Source func(ctx context.Context) (Signals, error)

// Watcher re-scores a page on a timer and on demand for a bounded lifetime,
// reporting only when the logged-in verdict changes.
type Watcher struct {
	source   Source
	emit     func(models.SessionVerdict)
	lifetime time.Duration
	interval time.Duration
	recheck  chan struct{}
	now      func() time.Time
}

// NewWatcher creates a Watcher. emit is called from the Run goroutine.
func NewWatcher(source Source, emit func(models.SessionVerdict), lifetime, interval time.Duration) *Watcher {
	if lifetime <= 0 {
		lifetime = 15 * time.Second
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Watcher{
		source:   source,
		emit:     emit,
		lifetime: lifetime,
		interval: interval,
		recheck:  make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Recheck asks for an extra evaluation, for instance after a DOM mutation.
// Requests arriving while one is pending are merged.
func (w *Watcher) Recheck() {
	select {
	case w.recheck <- struct{}{}:
	default:
	}
}

// Run evaluates immediately, then on every tick and recheck, until the
// lifetime elapses or ctx ends. It returns the last verdict.
func (w *Watcher) Run(ctx context.Context) models.SessionVerdict {
	ctx, cancel := context.WithTimeout(ctx, w.lifetime)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last models.SessionVerdict
	seen := false
	evaluate := func() {
		sig, err := w.source(ctx)
		if err != nil {
			slog.Debug("session signals unavailable", "error", err)
			return
		}
		v := Score(sig)
		v.At = w.now()
		if seen && v.LoggedIn == last.LoggedIn {
			last = v
			return
		}
		seen = true
		last = v
		slog.Info("session verdict changed", "loggedIn", v.LoggedIn, "score", v.Score)
		if w.emit != nil {
			w.emit(v)
		}
	}

	evaluate()
	for {
		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
			evaluate()
		case <-w.recheck:
			evaluate()
		}
	}
}
