package realtime

import (
	"sync"

	"keyframes-backend/internal/logger"
)

const subscriberBuffer = 64

// Hub delivers bus messages to local subscribers of a channel, typically
// server-sent event streams of editors that have a project open.
type Hub struct {
	log *logger.Logger

	mu   sync.RWMutex
	subs map[string]map[chan Message]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:  log.With("service", "RealtimeHub"),
		subs: make(map[string]map[chan Message]struct{}),
	}
}

// Subscribe returns a stream of messages on channel. cancel must be called
// when the subscriber goes away; it closes the stream.
func (h *Hub) Subscribe(channel string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan Message]struct{})
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], ch)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast never blocks: a subscriber whose buffer is full misses the
// message and is expected to resync from a snapshot version.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[msg.Channel] {
		select {
		case ch <- msg:
		default:
			h.log.Warn("dropping realtime message for slow subscriber", "channel", msg.Channel, "event", msg.Event)
		}
	}
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
