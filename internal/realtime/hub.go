package realtime

import (
	"log"
	"sync"

	"estospaces/internal/model"
)

// subscriptionBuffer is the per-subscriber event buffer. Subscribers
// that fall further behind are dropped rather than blocking publishers.
const subscriptionBuffer = 16

// Hub fans message-insert events out to subscribers, filtered by
// conversation id. It is the in-process equivalent of the database's
// realtime channel: the store publishes every insert here and each
// chat session subscribes to its own conversation.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers for insert events on the given conversation.
func (h *Hub) Subscribe(conversationID string) *Subscription {
	sub := &Subscription{
		hub:            h,
		conversationID: conversationID,
		ch:             make(chan model.Message, subscriptionBuffer),
	}

	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish delivers an insert event to every subscriber of the message's
// conversation. Delivery never blocks; a subscriber with a full buffer
// misses the event and is logged. The read lock is held across the
// sends so a concurrent Close cannot close a channel mid-publish.
func (h *Hub) Publish(msg model.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[msg.ConversationID] {
		select {
		case sub.ch <- msg:
		default:
			log.Printf("[Realtime] ⚠️  Dropped event %s for slow subscriber on conversation %s", msg.ID, msg.ConversationID)
		}
	}
}

// Subscribers reports how many subscriptions are live for a
// conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// Subscription is one registered listener. Close is idempotent and
// synchronously removes the listener from the hub.
type Subscription struct {
	hub            *Hub
	conversationID string
	ch             chan model.Message
	once           sync.Once
}

// Events returns the insert-event channel. It is closed by Close.
func (s *Subscription) Events() <-chan model.Message { return s.ch }

// Close removes the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.conversationID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.conversationID)
			}
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
}
