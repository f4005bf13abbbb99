package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/offersync/models"
	"github.com/use-agent/offersync/orchestrator"
)

var _ orchestrator.Navigator = (*Browser)(nil)

// ActiveTab returns the most recently used tab, opening one if the browser
// has none.
func (b *Browser) ActiveTab(ctx context.Context) (int, error) {
	b.mu.Lock()
	id := b.active
	_, ok := b.tabs[id]
	b.mu.Unlock()
	if ok {
		return id, nil
	}

	p, err := b.rod.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return 0, models.NewSyncError(models.ErrCodeTabNotFound, "no tab available", err)
	}
	return b.register(p.Context(b.ctx)).id, nil
}

// TabURL returns the address a tab is showing.
func (b *Browser) TabURL(ctx context.Context, tabID int) (string, error) {
	t, ok := b.tab(tabID)
	if !ok {
		return "", models.NewSyncError(models.ErrCodeTabNotFound, fmt.Sprintf("tab %d not found", tabID), nil)
	}
	info, err := t.page.Context(ctx).Info()
	if err != nil {
		return "", models.NewSyncError(models.ErrCodeBrowser, "tab info unavailable", err)
	}
	return info.URL, nil
}

// Navigate points a tab at a step's page. Listeners for the step's capture
// are armed before the navigation starts so an early response is not missed.
// They outlive the call and stop at the next Navigate on the tab, after
// CaptureWindow, or on Close.
func (b *Browser) Navigate(ctx context.Context, tabID int, target orchestrator.Target) error {
	t, ok := b.tab(tabID)
	if !ok {
		return models.NewSyncError(models.ErrCodeTabNotFound, fmt.Sprintf("tab %d not found", tabID), nil)
	}

	capCtx, cancel := context.WithTimeout(b.ctx, b.opts.CaptureWindow)
	b.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = cancel
	b.active = t.id
	b.mu.Unlock()

	if target.Step.Source == models.SourceNetwork {
		b.armNetworkCapture(capCtx, t.page, target)
	}

	slog.Info("navigating tab", "tabId", tabID, "runId", target.RunID, "step", target.Step.Name, "url", target.URL)
	if err := t.page.Context(ctx).Navigate(target.URL); err != nil {
		cancel()
		return categorizeError(err, "navigation failed")
	}

	if target.Step.Source == models.SourceDOM {
		go b.captureDOM(capCtx, t.page, target)
	}
	if b.opts.Session != nil {
		go b.watchSession(capCtx, t.page)
	}
	return nil
}

// categorizeError wraps raw rod errors so the orchestrator can report them.
func categorizeError(err error, msg string) *models.SyncError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewSyncError(models.ErrCodeStepTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewSyncError(models.ErrCodeNavigation, "navigation canceled", err)
	default:
		return models.NewSyncError(models.ErrCodeNavigation, msg, err)
	}
}
