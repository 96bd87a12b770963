// Package stream carries committed mutations to connected clients. The Hub
// tracks which connections watch which board, the Publisher pushes events to
// the shared redis channel without blocking the request path, and the Relay
// feeds redis messages back into the Hub so fan-out spans instances.
package stream

import (
	"sync"

	"hintro-api/domain"
)

const subscriberBuffer = 16

// Hub maps board ids to the set of live subscribers. A connection joins a
// board's set on subscribe and leaves on unsubscribe or disconnect; two tabs
// of the same user are independent subscribers.
type Hub struct {
	mu     sync.Mutex
	boards map[string]map[chan domain.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{boards: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe registers interest in a board and returns the event channel for
// the connection. The caller must Unsubscribe when done.
func (h *Hub) Subscribe(boardID string) chan domain.Event {
	ch := make(chan domain.Event, subscriberBuffer)
	h.mu.Lock()
	subs := h.boards[boardID]
	if subs == nil {
		subs = make(map[chan domain.Event]struct{})
		h.boards[boardID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber from a board's set.
func (h *Hub) Unsubscribe(boardID string, ch chan domain.Event) {
	h.mu.Lock()
	if subs, ok := h.boards[boardID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.boards, boardID)
		}
	}
	h.mu.Unlock()
}

// Broadcast delivers an event to every current subscriber of its board.
// Delivery is at-most-once with no retry: a subscriber whose buffer is full
// misses the event and resynchronizes on its next full board fetch.
func (h *Hub) Broadcast(ev domain.Event) {
	h.mu.Lock()
	subs := h.boards[ev.BoardID]
	targets := make([]chan domain.Event, 0, len(subs))
	for ch := range subs {
		targets = append(targets, ch)
	}
	h.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current subscriber count for a board.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.boards[boardID])
}
