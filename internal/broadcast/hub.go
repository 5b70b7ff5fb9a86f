package broadcast

import (
	"errors"
	"sync"

	"factory-status-backend/internal/model"
)

// EventMachineUpdate is emitted for every accepted status record.
const EventMachineUpdate = "machine_update"

// Event is one ordered change notification fanned out to subscribers.
type Event struct {
	Type             string       `json:"type"`
	Machine          string       `json:"machine"`
	Status           model.Status `json:"status"`
	Shift            string       `json:"shift"`
	DisplayTimestamp string       `json:"displayTimestamp"`
}

// Notifier is the sink the core publishes change events into. Delivery is
// best-effort; implementations must never block the caller.
type Notifier interface {
	Publish(Event)
}

// ErrTooManySubscribers is returned when the registry is at capacity.
var ErrTooManySubscribers = errors.New("subscriber registry is full")

// Hub is a bounded in-process registry of event subscribers. A subscriber
// whose buffer is full simply misses the event; the publisher never waits.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	max    int
	buffer int
}

// NewHub creates a hub holding at most maxSubscribers subscribers, each with
// the given channel buffer.
func NewHub(maxSubscribers, buffer int) *Hub {
	if maxSubscribers <= 0 {
		maxSubscribers = 64
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		max:    maxSubscribers,
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its event channel along
// with an unsubscribe function. The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) >= h.max {
		return nil, nil, ErrTooManySubscribers
	}

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, unsubscribe, nil
}

// Publish delivers the event to every subscriber that has buffer room.
// Events published from one goroutine arrive at each subscriber in order.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than delay ingestion.
		}
	}
}

// SubscriberCount reports the current registry size.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
