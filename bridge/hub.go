package bridge

import (
	"sync"

	"github.com/use-agent/offersync/models"
)

// Hub fans progress events out to subscribers. Publish never blocks: a
// subscriber that falls behind loses its oldest buffered event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan models.ProgressEvent]struct{}
	latest *models.ProgressEvent
	buffer int
}

// NewHub creates a Hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[chan models.ProgressEvent]struct{}),
		buffer: buffer,
	}
}

// Publish delivers ev to every subscriber and remembers it as the latest.
func (h *Hub) Publish(ev models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &ev
	for ch := range h.subs {
		deliver(ch, ev)
	}
}

func deliver(ch chan models.ProgressEvent, ev models.ProgressEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	// Full: make room by dropping the oldest event.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// Subscribe returns a channel of events, primed with the latest one, and a
// cancel func that closes it.
func (h *Hub) Subscribe() (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, h.buffer)
	h.mu.Lock()
	if h.latest != nil {
		ch <- *h.latest
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Latest returns the most recent event, if any.
func (h *Hub) Latest() (models.ProgressEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return models.ProgressEvent{}, false
	}
	return *h.latest, true
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// SessionBoard keeps the latest session verdict, whoever reported it.
type SessionBoard struct {
	mu     sync.RWMutex
	latest *models.SessionVerdict
}

// Publish records v.
func (b *SessionBoard) Publish(v models.SessionVerdict) {
	b.mu.Lock()
	b.latest = &v
	b.mu.Unlock()
}

// Latest returns the last verdict, if any.
func (b *SessionBoard) Latest() (models.SessionVerdict, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return models.SessionVerdict{}, false
	}
	return *b.latest, true
}
