package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/offersync/extractor"
	"github.com/use-agent/offersync/models"
	"github.com/use-agent/offersync/orchestrator"
)

// responseMatcher tracks responses whose URL carries a step's marker until
// their bodies have finished loading.
type responseMatcher struct {
	marker string

	mu      sync.Mutex
	pending map[string]string // request ID -> URL
}

func newResponseMatcher(marker string) *responseMatcher {
	return &responseMatcher{marker: marker, pending: make(map[string]string)}
}

// observe records a response if it is a successful JSON answer from the
// marked endpoint.
func (m *responseMatcher) observe(id, url string, status int, mime string) bool {
	if m.marker == "" || !strings.Contains(url, m.marker) {
		return false
	}
	if status < 200 || status >= 300 {
		return false
	}
	if mime != "" && !strings.Contains(strings.ToLower(mime), "json") {
		return false
	}
	m.mu.Lock()
	m.pending[id] = url
	m.mu.Unlock()
	return true
}

// finished reports whether id was a tracked response, forgetting it.
func (m *responseMatcher) finished(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.pending[id]
	delete(m.pending, id)
	return url, ok
}

// decodeBody turns a CDP response body into JSON, or reports false.
func decodeBody(body string, base64Encoded bool) (json.RawMessage, bool) {
	raw := []byte(body)
	if base64Encoded {
		b, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, false
		}
		raw = b
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// armNetworkCapture listens for the step's API response and posts its body.
// The first valid body wins.
func (b *Browser) armNetworkCapture(ctx context.Context, page *rod.Page, target orchestrator.Target) {
	m := newResponseMatcher(target.Step.WaitFor)
	ready := make(chan proto.NetworkRequestID, 8)

	wait := page.Context(ctx).EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			if m.observe(string(e.RequestID), e.Response.URL, e.Response.Status, e.Response.MIMEType) {
				slog.Debug("matched step response", "runId", target.RunID, "dataKey", target.Step.DataKey, "url", e.Response.URL)
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			if _, ok := m.finished(string(e.RequestID)); ok {
				select {
				case ready <- e.RequestID:
				default:
				}
			}
		},
	)
	go wait()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-ready:
				res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
				if err != nil {
					slog.Debug("response body unavailable", "dataKey", target.Step.DataKey, "error", err)
					continue
				}
				data, ok := decodeBody(res.Body, res.Base64Encoded)
				if !ok {
					slog.Debug("response body is not JSON", "dataKey", target.Step.DataKey)
					continue
				}
				b.post(target, data)
				return
			}
		}
	}()
}

// captureDOM waits for the page to settle, runs the step's extractor on the
// rendered markup and posts the payload.
func (b *Browser) captureDOM(ctx context.Context, page *rod.Page, target orchestrator.Target) {
	p := page.Context(ctx)
	if err := p.WaitLoad(); err != nil {
		slog.Debug("page load wait failed", "dataKey", target.Step.DataKey, "error", err)
	}

	probe := func(ctx context.Context) (bool, error) {
		res, err := p.Eval(readyJS, target.Step.WaitFor)
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	}
	extractor.WaitReady(ctx, probe, b.opts.Extractor.ReadyPolls, b.opts.Extractor.ReadyInterval)
	if ctx.Err() != nil {
		return
	}

	html, err := p.HTML()
	if err != nil {
		slog.Warn("could not read page markup", "dataKey", target.Step.DataKey, "error", err)
		return
	}
	pageURL := target.URL
	if info, err := p.Info(); err == nil {
		pageURL = info.URL
	}

	res, err := b.opts.Registry.Extract(ctx, target.Step.DataKey, &extractor.Snapshot{
		URL:   pageURL,
		HTML:  html,
		Brand: target.Brand,
	})
	if err != nil {
		slog.Warn("dom extraction failed", "runId", target.RunID, "dataKey", target.Step.DataKey, "error", err)
		return
	}
	if res.Partial {
		slog.Warn("dom extraction partial", "runId", target.RunID, "dataKey", target.Step.DataKey)
	}
	b.post(target, res.Payload)
}

// readyJS reports whether the page is complete, on the expected path and
// has rendered some text.
const readyJS = `(marker) => {
	if (document.readyState !== 'complete' || !document.body) return false;
	if (marker && !location.href.includes(marker)) return false;
	return document.body.innerText.trim().length > 200;
}`

func (b *Browser) post(target orchestrator.Target, data json.RawMessage) {
	if b.opts.Relay == nil {
		return
	}
	b.opts.Relay.Post(models.Envelope{
		Type:    models.MsgDataCaptured,
		DataKey: target.Step.DataKey,
		Data:    data,
		RunID:   target.RunID,
	})
}
