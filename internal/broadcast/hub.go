// Package broadcast fans out device reports to live stream subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
)

// DefaultCapacity is the inbox size used when none is configured.
const DefaultCapacity = 64

// Message is one serialized event. ID identifies the underlying report and
// Owner the user the device belonged to when it was taken.
type Message struct {
	ID    string
	Owner uuid.UUID
	Data  []byte
}

// Subscription is one viewer's bounded inbox for a single device.
type Subscription struct {
	deviceID uuid.UUID
	inbox    chan Message
	dropped  atomic.Uint64
	closed   bool // guarded by Hub.mu
}

// Inbox returns the channel messages arrive on. It is closed on unsubscribe.
func (s *Subscription) Inbox() <-chan Message { return s.inbox }

// DeviceID returns the watched device.
func (s *Subscription) DeviceID() uuid.UUID { return s.deviceID }

// Dropped reports how many messages were discarded because the inbox was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Hub routes published messages to every subscriber of a device.
// Publish never blocks: when an inbox is full its oldest pending message is
// dropped to make room.
type Hub struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]map[*Subscription]struct{}
	capacity int
}

// NewHub constructs a Hub. capacity <= 0 selects DefaultCapacity.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		subs:     make(map[uuid.UUID]map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a new inbox for deviceID.
func (h *Hub) Subscribe(deviceID uuid.UUID) *Subscription {
	s := &Subscription{deviceID: deviceID, inbox: make(chan Message, h.capacity)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[deviceID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[deviceID] = set
	}
	set[s] = struct{}{}
	return s
}

// Unsubscribe removes s and closes its inbox. Repeated calls are no-ops.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.inbox)
	if set, ok := h.subs[s.deviceID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.deviceID)
		}
	}
}

// Publish delivers m to every subscriber of deviceID and returns how many
// inboxes received it. Zero subscribers is not an error.
func (h *Hub) Publish(deviceID uuid.UUID, m Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for s := range h.subs[deviceID] {
		if offer(s, m) {
			n++
		}
	}
	return n
}

// offer enqueues m, evicting the oldest pending message if the inbox is full.
// Only publishers send, and they hold Hub.mu, so one eviction frees a slot
// unless the consumer raced us to it, which also frees a slot.
func offer(s *Subscription, m Message) bool {
	select {
	case s.inbox <- m:
		return true
	default:
	}
	select {
	case <-s.inbox:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.inbox <- m:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Subscribers returns the number of live subscriptions for deviceID.
func (h *Hub) Subscribers(deviceID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[deviceID])
}

// Close unsubscribes everyone so open streams terminate.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for s := range set {
			h.removeLocked(s)
		}
	}
}
