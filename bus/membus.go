package bus

import (
	"sync"
	"sync/atomic"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 256).
	SubscriberBufferSize int
}

// MemBus is an in-memory event bus. It stamps each published event with a
// monotonic sequence number, which replay readers use for deduplication.
type MemBus struct {
	mu      sync.RWMutex
	subs    []*Subscription
	bufSize int
	closed  bool

	seq atomic.Uint64
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemBus{bufSize: bufSize}
}

// Publish stamps the event with the next sequence number and sends it to
// every matching subscriber. Events that already carry a sequence number
// (replays) keep it. If the bus is closed, the event is silently dropped.
func (b *MemBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	if event.Seq == 0 {
		event.Seq = b.seq.Add(1)
	}

	for _, sub := range b.subs {
		if sub.matches(event) {
			sub.send(event)
		}
	}
}

// Subscribe registers a subscriber for events matching the given options.
// Returns a Subscription that must be closed when done. Subscribing to a
// closed bus yields an already-closed subscription.
func (b *MemBus) Subscribe(opts ...SubscribeOption) *Subscription {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ch:     make(chan Event, b.bufSize),
		filter: cfg,
		detach: b.remove,
	}
	if b.closed {
		sub.close()
		return sub
	}
	b.subs = append(b.subs, sub)
	return sub
}

// LastSeq returns the sequence number of the most recently published event.
func (b *MemBus) LastSeq() uint64 {
	return b.seq.Load()
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subs {
		sub.close()
	}
	b.subs = nil
	return nil
}

// remove drops a subscription from the fan-out list.
func (b *MemBus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Compile-time interface check.
var _ EventBus = (*MemBus)(nil)
