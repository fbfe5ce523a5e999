package brightness

import "sync"

type EventType string

const (
	// EventChanged carries a new observed (or optimistically assumed) percent.
	EventChanged EventType = "changed"
	// EventDisplaysChanged is sent when the known bus set grows.
	EventDisplaysChanged EventType = "displays_changed"
)

type Event struct {
	Type    EventType `json:"type"`
	Bus     int       `json:"bus,omitempty"`
	Percent int       `json:"percent"`
}

type eventHub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func (h *eventHub) subscribe(buffer int) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	ch := make(chan Event, max(1, buffer))
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// emit never blocks; a subscriber with a full buffer misses the event.
func (h *eventHub) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
