package events

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes lifecycle events to registered subscribers in a fan-out
	// pattern. The bus is thread-safe and supports concurrent Publish,
	// Register and subscription Close operations.
	//
	// Events are delivered synchronously in the publisher's goroutine and
	// iteration stops at the first subscriber error, so critical subscribers
	// (run log persistence, stream sinks) can halt execution when they hit an
	// unrecoverable failure.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber. Iteration stops at the first subscriber error.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber and returns a Subscription that
		// unregisters it when closed. Returns an error when sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events. Implementations must be
	// thread-safe when registered with multiple buses. Returning an error
	// halts delivery to remaining subscribers and surfaces to the publisher;
	// non-critical failures should be logged and swallowed.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration. Close removes the
	// subscriber from the bus; it is idempotent and thread-safe.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu sync.RWMutex
		// subscribers keyed by subscription handle so Close can remove
		// entries without scanning.
		subscribers map[*subscription]Subscriber
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent invokes the wrapped function.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NewBus constructs an in-memory event bus. Delivery is a synchronous
// fan-out: Publish invokes each registered subscriber in turn and stops at
// the first error. The subscriber snapshot is taken before iteration so
// registrations during a Publish do not affect the current delivery.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every registered subscriber.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber to the bus.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Events already being delivered
// may still reach the subscriber; new publications will not.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
