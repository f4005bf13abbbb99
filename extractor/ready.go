package extractor

import (
	"context"
	"log/slog"
	"time"
)

// ReadyProbe reports whether a page has rendered enough to extract from.
type ReadyProbe func(ctx context.Context) (bool, error)

// WaitReady polls probe up to polls times, interval apart. It returns false
// when the budget runs out or ctx ends; callers extract anyway.
func WaitReady(ctx context.Context, probe ReadyProbe, polls int, interval time.Duration) bool {
	if polls <= 0 {
		polls = 1
	}
	for i := 1; i <= polls; i++ {
		ok, err := probe(ctx)
		if err != nil {
			slog.Debug("readiness probe failed", "attempt", i, "error", err)
		}
		if ok {
			return true
		}
		if i == polls {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	slog.Info("page not ready, extracting anyway", "polls", polls)
	return false
}
