package events

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

const subscriberBuffer = 100

// hub fans events out to local subscriber channels
type hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.ChangeEvent]struct{}
	logger      *zerolog.Logger
}

func newHub(logger *zerolog.Logger) *hub {
	return &hub{
		subscribers: make(map[string]map[chan *entities.ChangeEvent]struct{}),
		logger:      logger,
	}
}

// add registers a subscriber and reports whether it is the first for the channel
func (h *hub) add(channel string) (chan *entities.ChangeEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := false
	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[chan *entities.ChangeEvent]struct{})
		first = true
	}
	ch := make(chan *entities.ChangeEvent, subscriberBuffer)
	h.subscribers[channel][ch] = struct{}{}
	return ch, first
}

// remove closes one subscriber and reports whether the channel is now empty
func (h *hub) remove(channel string, ch chan *entities.ChangeEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[channel]
	if !ok {
		return false
	}
	if _, ok := subs[ch]; !ok {
		return false
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, channel)
		return true
	}
	return false
}

// drop closes every subscriber of a channel
func (h *hub) drop(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[channel] {
		close(ch)
	}
	delete(h.subscribers, channel)
}

func (h *hub) channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.subscribers))
	for channel := range h.subscribers {
		out = append(out, channel)
	}
	return out
}

// broadcast never blocks; a full subscriber misses the event
func (h *hub) broadcast(channel string, event *entities.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[channel] {
		select {
		case ch <- event:
		default:
			h.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber full, dropping event")
		}
	}
}
