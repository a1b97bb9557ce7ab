package passkey

import "sync"

// Endpoint is a live connection able to receive events. Implementations
// must not block in Deliver: the broker calls it inline from Publish,
// so a slow consumer has to buffer or drop on its own side (the
// websocket hub uses a buffered send channel and drops when full).
type Endpoint interface {
	Deliver(event Event)
}

// Broker maps logical topics to the live endpoints subscribed to them.
// Delivery is best-effort: no retry, no ordering across topics, dead
// endpoints silently skipped.
//
// Two topic families exist: a user topic (the normalised user key),
// shared by all of a user's approver devices, and a requester topic,
// unique to one attempt and never shared.
type Broker interface {
	// Subscribe adds endpoint to topic's subscriber set. Subscribing
	// twice is a no-op. An endpoint may hold many topics.
	Subscribe(topic string, endpoint Endpoint)

	// Publish delivers event to every endpoint currently subscribed
	// to topic.
	Publish(topic string, event Event)

	// Unsubscribe removes endpoint from every topic it belongs to.
	// Called on disconnect.
	Unsubscribe(endpoint Endpoint)
}

// TopicBroker is the in-memory Broker used in production. It holds no
// transport state of its own; endpoints are whatever the transport
// layer registers.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Deliver is invoked
//     outside the lock, so endpoints may call back into the broker.
type TopicBroker struct {
	mu     sync.RWMutex
	topics map[string]map[Endpoint]struct{}
	member map[Endpoint]map[string]struct{}
}

// NewTopicBroker creates an empty broker.
func NewTopicBroker() *TopicBroker {
	return &TopicBroker{
		topics: make(map[string]map[Endpoint]struct{}),
		member: make(map[Endpoint]map[string]struct{}),
	}
}

// Subscribe implements Broker.
func (b *TopicBroker) Subscribe(topic string, endpoint Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[Endpoint]struct{})
	}
	b.topics[topic][endpoint] = struct{}{}

	if b.member[endpoint] == nil {
		b.member[endpoint] = make(map[string]struct{})
	}
	b.member[endpoint][topic] = struct{}{}
}

// Publish implements Broker. The subscriber set is snapshotted under
// the read lock and delivery happens outside it.
func (b *TopicBroker) Publish(topic string, event Event) {
	b.mu.RLock()
	subs := make([]Endpoint, 0, len(b.topics[topic]))
	for ep := range b.topics[topic] {
		subs = append(subs, ep)
	}
	b.mu.RUnlock()

	for _, ep := range subs {
		ep.Deliver(event)
	}
}

// Unsubscribe implements Broker.
func (b *TopicBroker) Unsubscribe(endpoint Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic := range b.member[endpoint] {
		delete(b.topics[topic], endpoint)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}
	delete(b.member, endpoint)
}

// Subscribers returns the current subscriber count for a topic.
func (b *TopicBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
