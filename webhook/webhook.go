// Package webhook forwards finished sync runs to a backend endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/offersync/models"
)

// SignatureHeader carries the HMAC-SHA256 of the body as "sha256=<hex>".
const SignatureHeader = "X-Offersync-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string                `json:"type"` // "sync.completed", "sync.stopped", "sync.failed"
	RunID     string                `json:"run_id"`
	Timestamp int64                 `json:"timestamp"`
	Data      *models.ProgressEvent `json:"data"`
}

// EventFor maps a terminal progress event to a webhook event.
func EventFor(ev models.ProgressEvent) *Event {
	typ := "sync.completed"
	switch {
	case ev.Status == models.ProgressStopped:
		typ = "sync.stopped"
	case ev.Summary != nil && ev.Summary.CapturedSteps == 0:
		typ = "sync.failed"
	}
	return &Event{Type: typ, RunID: ev.RunID, Timestamp: ev.At.Unix(), Data: &ev}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends an event synchronously. The body is signed when secret is
// non-empty.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Offersync-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Forwarder delivers the terminal events of every run, retrying failures.
type Forwarder struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	queue  int
}

// NewForwarder creates a Forwarder. Retry intervals are 1s, 5s, 30s.
func NewForwarder(url, secret string) *Forwarder {
	return &Forwarder{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		queue:  16,
	}
}

// Run forwards terminal events from events until ctx ends or the channel
// closes. Progress that is not terminal is ignored. Deliveries run on their
// own goroutine so events keeps draining while a retry waits.
func (f *Forwarder) Run(ctx context.Context, events <-chan models.ProgressEvent) {
	pending := make(chan *Event, f.queue)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range pending {
			f.deliver(ctx, event)
		}
	}()
	defer func() {
		close(pending)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Terminal() {
				continue
			}
			event := EventFor(ev)
			select {
			case pending <- event:
			default:
				slog.Error("webhook queue full, dropping event", "event", event.Type, "runId", event.RunID)
			}
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, event *Event) {
	for attempt, delay := range f.delays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := Deliver(reqCtx, f.client, f.url, f.secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered", "url", f.url, "event", event.Type, "runId", event.RunID, "attempt", attempt+1)
			return
		}
		slog.Warn("webhook delivery failed", "url", f.url, "event", event.Type, "runId", event.RunID,
			"attempt", attempt+1, "error", err)
	}
	slog.Error("webhook delivery exhausted all retries", "url", f.url, "event", event.Type, "runId", event.RunID)
}
