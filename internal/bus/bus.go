// Package bus implements a small in-process pub/sub bus used to fan out
// record change notifications to UI-style subscribers.
//
// Subscriptions carry an owner label. A publish names the owner that caused
// the change and is delivered to every matching subscriber except that
// owner: the originating caller already receives the result on its reply
// channel, so pushing the same change at it again would double-deliver.
package bus

import (
	"strings"
	"sync"
)

const defaultBufferSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Owner   string // owner that caused the change
	Payload any
}

// Subscription represents an active subscription.
type Subscription struct {
	id     int
	prefix string
	owner  string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// Bus is an in-process pub/sub message bus with topic prefix matching.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*Subscription),
	}
}

// Subscribe creates a subscription for events matching the given topic
// prefix, tagged with the subscriber's owner label. An empty prefix matches
// all topics. The returned channel has a buffer of 100 events; slow
// consumers will miss events (non-blocking send).
func (b *Bus) Subscribe(topicPrefix, owner string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		owner:  owner,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to all matching subscribers except the one whose
// owner label equals owner. Delivery is non-blocking: if a subscriber's
// buffer is full, the event is dropped.
func (b *Bus) Publish(topic, owner string, payload any) {
	event := Event{
		Topic:   topic,
		Owner:   owner,
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if owner != "" && sub.owner == owner {
			continue
		}
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}
