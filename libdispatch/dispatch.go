// Package libdispatch is a named-topic fan-out for in-process change
// notifications. Delivery is synchronous and in registration order;
// subscriptions are individually revocable. It carries no payload
// semantics and never spawns goroutines.
package libdispatch

import "sync"

// Handler receives every event published on a subscribed topic.
type Handler func(topic string, payload any)

// Subscription revokes one subscriber.
type Subscription interface {
	Unsubscribe()
}

// Dispatcher fans events out to topic subscribers.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]*subscriber
}

type subscriber struct {
	id      uint64
	handler Handler
}

type subscription struct {
	topic string
	id    uint64
	d     *Dispatcher
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{topics: make(map[string][]*subscriber)}
}

// Subscribe registers handler for topic. Handlers run synchronously in
// the order they were registered.
func (d *Dispatcher) Subscribe(topic string, handler Handler) Subscription {
	d.mu.Lock()
	d.nextID++
	sub := &subscriber{id: d.nextID, handler: handler}
	d.topics[topic] = append(d.topics[topic], sub)
	id := d.nextID
	d.mu.Unlock()
	return &subscription{topic: topic, id: id, d: d}
}

// Publish delivers payload to every current subscriber of topic, in
// registration order, on the calling goroutine.
func (d *Dispatcher) Publish(topic string, payload any) {
	d.mu.RLock()
	// Copy the subscriber list so handlers may subscribe/unsubscribe
	// without deadlocking.
	subs := make([]*subscriber, len(d.topics[topic]))
	copy(subs, d.topics[topic])
	d.mu.RUnlock()

	for _, s := range subs {
		s.handler(topic, payload)
	}
}

func (s *subscription) Unsubscribe() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	subs := s.d.topics[s.topic]
	for i, sub := range subs {
		if sub.id == s.id {
			s.d.topics[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
