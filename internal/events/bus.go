package events

import (
	"fmt"
	"os"
	"sync"
)

// Bus delivers lifecycle events to subscribers. Delivery is synchronous and
// in registration order: Emit calls each handler on the caller's goroutine
// before returning. There is no replay of past events for late subscribers,
// and a failing handler never breaks delivery to the handlers after it or
// propagates back into the emitter.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every event emitted after this call.
// The returned function removes the subscription; calling it more than once
// is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.handlers {
			if sub.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every current subscriber. Called only by the
// supervisor.
func (b *Bus) Emit(event LifecycleEvent) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers))
	copy(subs, b.handlers)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, event)
	}
}

// deliver invokes one handler, isolating panics so a misbehaving subscriber
// cannot break emission.
func (b *Bus) deliver(sub subscription, event LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "events: subscriber panicked handling %s for %s: %v\n",
				event.Kind, event.Agent, r)
		}
	}()
	sub.handler(event)
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
