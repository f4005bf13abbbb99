package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/use-agent/offersync/models"
)

// Capturer receives captured payloads. Capture must not block.
type Capturer interface {
	Capture(c models.DataCaptured)
}

// CaptureFunc adapts a function to the Capturer interface.
type CaptureFunc func(c models.DataCaptured)

func (f CaptureFunc) Capture(c models.DataCaptured) { f(c) }

// SessionSink receives session verdicts reported by the page.
type SessionSink interface {
	Publish(v models.SessionVerdict)
}

// Relay is the inbound queue from the page context. Post never blocks; when
// the queue is full the message is dropped and counted.
type Relay struct {
	in       chan models.Envelope
	target   Capturer
	sessions SessionSink
	dropped  atomic.Int64
}

// NewRelay creates a Relay delivering captures to target.
func NewRelay(target Capturer, size int) *Relay {
	if size <= 0 {
		size = 128
	}
	return &Relay{in: make(chan models.Envelope, size), target: target}
}

// WithSessions routes session_state messages to sink.
func (r *Relay) WithSessions(sink SessionSink) *Relay {
	r.sessions = sink
	return r
}

// Post queues env. It returns false when the message was dropped.
func (r *Relay) Post(env models.Envelope) bool {
	select {
	case r.in <- env:
		return true
	default:
		n := r.dropped.Add(1)
		slog.Warn("relay queue full, message dropped", "type", env.Type, "dataKey", env.DataKey, "dropped", n)
		return false
	}
}

// Dropped returns how many messages Post has discarded.
func (r *Relay) Dropped() int64 {
	return r.dropped.Load()
}

// Run dispatches queued messages until ctx ends.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.in:
			r.dispatch(env)
		}
	}
}

func (r *Relay) dispatch(env models.Envelope) {
	switch env.Type {
	case models.MsgDataCaptured:
		slog.Debug("relaying capture", "dataKey", env.DataKey, "runId", env.RunID,
			"payload", string(truncate(Redact(env.Data), 512)))
		r.target.Capture(models.DataCaptured{DataKey: env.DataKey, Data: env.Data, RunID: env.RunID})
	case models.MsgSessionState:
		if env.Session != nil && r.sessions != nil {
			r.sessions.Publish(*env.Session)
		}
	case models.MsgLog:
		slog.Info("page log", "level", env.Level, "message", RedactString(env.Message))
	default:
		slog.Debug("relay ignored message", "type", env.Type)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
