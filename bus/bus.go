// Package bus provides event distribution for bramble executions. Components
// publish runtime events and observers such as the SSE stream, the WebSocket
// hub, and the metrics handler subscribe to them, keeping the tick path
// decoupled from its consumers.
package bus

import "sync"

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers. Delivery is
	// best-effort: a slow subscriber loses events rather than blocking
	// the publisher.
	Publish(event Event)

	// Subscribe registers a subscriber. Options narrow which events it
	// receives; with none it sees everything. The returned Subscription
	// must be closed when done.
	Subscribe(opts ...SubscribeOption) *Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// SubscribeOption narrows what a subscription receives.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	executionID string
	kinds       map[EventKind]struct{}
}

// WithExecution limits the subscription to events from one execution.
func WithExecution(executionID string) SubscribeOption {
	return func(c *subscribeConfig) {
		c.executionID = executionID
	}
}

// WithKinds limits the subscription to the given event kinds.
func WithKinds(kinds ...EventKind) SubscribeOption {
	return func(c *subscribeConfig) {
		if c.kinds == nil {
			c.kinds = make(map[EventKind]struct{}, len(kinds))
		}
		for _, k := range kinds {
			c.kinds[k] = struct{}{}
		}
	}
}

// Subscription receives the events matching its filters on a buffered
// channel. The channel is closed when the subscription or its bus closes.
type Subscription struct {
	ch     chan Event
	filter subscribeConfig
	detach func(*Subscription)

	mu     sync.Mutex
	closed bool
}

// Events returns the subscription's event channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes and releases resources. Safe to call more than once.
func (s *Subscription) Close() error {
	if s.detach != nil {
		s.detach(s)
	}
	s.close()
	return nil
}

// matches reports whether the subscription's filters accept e.
func (s *Subscription) matches(e Event) bool {
	if s.filter.executionID != "" && e.ExecutionID != s.filter.executionID {
		return false
	}
	if len(s.filter.kinds) > 0 {
		if _, ok := s.filter.kinds[e.Kind]; !ok {
			return false
		}
	}
	return true
}

// send delivers an event without blocking. Full or closed subscriptions
// drop the event.
func (s *Subscription) send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- e:
	default:
		// Drop if channel full.
	}
}

// close closes the channel once.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
