// Package broadcast fans supervisor events out to realtime subscribers,
// scoped per user. Delivery is best-effort and at-most-once; subscribers
// that fall behind lose events and must use the status endpoints to catch up.
package broadcast

import (
	"sync"

	"walink/internal/domain"

	"github.com/rs/zerolog/log"
)

const subscriptionBuffer = 16

// Subscription is one subscriber's event feed
type Subscription struct {
	userID domain.UserID
	ch     chan domain.Event
	once   sync.Once
}

// Events returns the subscriber's receive channel
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Broadcaster implements domain.EventPublisher with per-user fan-out
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[domain.UserID]map[*Subscription]struct{}
}

// New creates a broadcaster
func New() *Broadcaster {
	return &Broadcaster{
		subs: make(map[domain.UserID]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber for one user's events
func (b *Broadcaster) Subscribe(userID domain.UserID) *Subscription {
	sub := &Subscription{
		userID: userID,
		ch:     make(chan domain.Event, subscriptionBuffer),
	}

	b.mu.Lock()
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[userID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// twice. The close happens under the write lock, after the subscriber is no
// longer visible to Publish, so no send can race it.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[sub.userID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sub.userID)
			}
		}
	}

	sub.once.Do(func() {
		close(sub.ch)
	})
}

// Publish delivers an event to every subscriber of the user. Events are
// never delivered cross-tenant. A full subscriber buffer drops the event.
// Sends happen under the read lock; only subscribers still registered can
// receive, so Publish never hits a closed channel.
func (b *Broadcaster) Publish(userID domain.UserID, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[userID] {
		select {
		case sub.ch <- event:
		default:
			log.Warn().
				Str("user_id", userID.String()).
				Str("event", string(event.Name)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the number of subscribers for a user
func (b *Broadcaster) SubscriberCount(userID domain.UserID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
