package bus

import (
	"sync"
	"time"
)

// ThrottleConfig controls the behavior of ThrottledPublisher.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced node.ticked events.
	// Default: 100ms
	CoalesceInterval time.Duration
}

// ThrottledPublisher wraps an event sink and coalesces high-frequency
// node.ticked events. Other kinds pass through immediately. node.ticked
// events are coalesced per execution and node: only the latest one for each
// node is kept within each coalesce interval. A background ticker flushes
// coalesced events at the configured interval.
//
// The WebSocket hub sits behind one of these so a tree ticking at high rate
// does not turn every node evaluation into a frame.
type ThrottledPublisher struct {
	publish  func(Event)
	interval time.Duration

	mu      sync.Mutex
	pending map[string]Event // executionID+nodeID -> latest node.ticked
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewThrottledPublisher creates a ThrottledPublisher that forwards to
// publish and coalesces EventNodeTicked at the configured interval.
func NewThrottledPublisher(publish func(Event), cfg ThrottleConfig) *ThrottledPublisher {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	tp := &ThrottledPublisher{
		publish:  publish,
		interval: interval,
		pending:  make(map[string]Event),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go tp.run()

	return tp
}

// Publish sends an event through the throttle. Kinds other than
// EventNodeTicked pass through immediately; node.ticked events are held and
// only the latest per node flushes each interval.
func (tp *ThrottledPublisher) Publish(event Event) {
	if event.Kind != EventNodeTicked {
		tp.publish(event)
		return
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.closed {
		return
	}

	tp.pending[event.ExecutionID+"/"+event.NodeID] = event
}

// Close flushes any pending node events and stops the background ticker.
// It is safe to call Close multiple times.
func (tp *ThrottledPublisher) Close() {
	tp.mu.Lock()
	if tp.closed {
		tp.mu.Unlock()
		return
	}
	tp.closed = true
	tp.mu.Unlock()

	close(tp.stopCh)
	<-tp.doneCh
}

// run periodically flushes coalesced node events.
func (tp *ThrottledPublisher) run() {
	defer close(tp.doneCh)

	ticker := time.NewTicker(tp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tp.flush()
		case <-tp.stopCh:
			// Flush any remaining pending events before exiting.
			tp.flush()
			return
		}
	}
}

// flush sends all pending coalesced node events to the wrapped sink and
// clears the pending map.
func (tp *ThrottledPublisher) flush() {
	tp.mu.Lock()
	if len(tp.pending) == 0 {
		tp.mu.Unlock()
		return
	}

	// Swap out the pending map so the lock is not held during emission.
	toFlush := tp.pending
	tp.pending = make(map[string]Event)
	tp.mu.Unlock()

	for _, e := range toFlush {
		tp.publish(e)
	}
}
