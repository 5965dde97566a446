package notify

import "sync"

const subscriberBuffer = 16

type subscriber struct {
	ch chan StatusEvent
}

// Hub fans status transitions out to subscribers: one topic per model
// version plus an all-versions broadcast topic. Publish never blocks; a
// subscriber whose buffer is full simply misses that event.
type Hub struct {
	mu          sync.RWMutex
	versionSubs map[int64]map[*subscriber]struct{}
	allSubs     map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		versionSubs: make(map[int64]map[*subscriber]struct{}),
		allSubs:     make(map[*subscriber]struct{}),
	}
}

// Publish delivers the event to the version's topic and the broadcast topic.
func (h *Hub) Publish(e StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.versionSubs[e.VersionID] {
		s.send(e)
	}
	for s := range h.allSubs {
		s.send(e)
	}
}

// Subscribe registers for one version's transitions. The returned cancel
// function must be called to release the subscription.
func (h *Hub) Subscribe(versionID int64) (<-chan StatusEvent, func()) {
	s := &subscriber{ch: make(chan StatusEvent, subscriberBuffer)}

	h.mu.Lock()
	subs, ok := h.versionSubs[versionID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.versionSubs[versionID] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.versionSubs[versionID]; ok {
				delete(subs, s)
				if len(subs) == 0 {
					delete(h.versionSubs, versionID)
				}
			}
			// Safe: Publish sends only under RLock, excluded by this Lock.
			close(s.ch)
			h.mu.Unlock()
		})
	}
	return s.ch, cancel
}

// SubscribeAll registers for every version's transitions.
func (h *Hub) SubscribeAll() (<-chan StatusEvent, func()) {
	s := &subscriber{ch: make(chan StatusEvent, subscriberBuffer)}

	h.mu.Lock()
	h.allSubs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.allSubs, s)
			close(s.ch)
			h.mu.Unlock()
		})
	}
	return s.ch, cancel
}

func (s *subscriber) send(e StatusEvent) {
	select {
	case s.ch <- e:
	default:
		// subscriber too slow, drop the event
	}
}
