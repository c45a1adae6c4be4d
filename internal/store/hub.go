package store

import (
	"slices"
	"sync"

	"dinners/internal/core"
)

// Hub fans snapshots out to subscribers. It remembers the latest snapshot
// so a new subscriber is primed with it, and it publishes and primes under
// one lock so every subscriber sees snapshots in the same order.
type Hub struct {
	mu     sync.Mutex
	latest core.Ledger
	primed bool
	next   uint64
	subs   map[uint64]Listener
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]Listener)}
}

// Publish records snap as the latest snapshot and delivers it to every
// subscriber before returning.
func (h *Hub) Publish(snap core.Ledger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = snap.Clone()
	h.primed = true
	for _, id := range h.orderedIDs() {
		h.subs[id](h.latest.Clone())
	}
}

// Primed reports whether a snapshot has been published yet.
func (h *Hub) Primed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.primed
}

// Subscribe registers l and immediately delivers the latest snapshot.
// The hub must be primed first.
func (h *Hub) Subscribe(l Listener) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = l
	if h.primed {
		l(h.latest.Clone())
	}
	return &hubSubscription{hub: h, id: id}
}

// Len is the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) orderedIDs() []uint64 {
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type hubSubscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
