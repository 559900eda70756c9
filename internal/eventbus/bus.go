// Package eventbus is an in-process, bounded-queue publish/subscribe
// mechanism used for cross-component notification — concretely, the
// Indexer's "semantic:new_entities" events consumed by the Semantic
// Engine. Topics are plain strings; payloads are untyped and cast by
// the subscriber.
package eventbus

import "sync"

// Event is one published message.
type Event struct {
	Topic   string
	Payload any
}

// Bus fans out events to per-subscriber bounded channels. A slow
// subscriber's queue filling up never blocks the publisher or other
// subscribers — the event is dropped for that subscriber and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
}

type subscription struct {
	ch      chan Event
	dropped *int64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]*subscription)}
}

// Subscribe returns a channel receiving events published to topic. The
// channel has capacity queueDepth; once full, further publishes to this
// subscriber are dropped (not blocked) and counted; the returned
// function reports that count.
func (b *Bus) Subscribe(topic string, queueDepth int) (<-chan Event, func() int64) {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	sub := &subscription{ch: make(chan Event, queueDepth), dropped: new(int64)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	droppedFn := func() int64 { return *sub.dropped }
	return sub.ch, droppedFn
}

// Publish delivers an event to every subscriber of topic, in publication
// order per subscriber, without blocking on slow consumers.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			*sub.dropped++
		}
	}
}

// Close closes every subscriber channel for topic. Publish after Close
// on a topic with no remaining subscribers is a no-op.
func (b *Bus) Close(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers[topic] {
		close(sub.ch)
	}
	delete(b.subscribers, topic)
}
