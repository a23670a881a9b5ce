package bus

import (
	"context"
	"log/slog"
)

// StoreSubscriber writes events to an EventStore so replay readers can
// catch up. Run it against a Subscription covering the events to retain.
type StoreSubscriber struct {
	store  EventStore
	logger *slog.Logger
}

// NewStoreSubscriber creates a new StoreSubscriber.
func NewStoreSubscriber(store EventStore, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{
		store:  store,
		logger: logger,
	}
}

// Handle persists a single event to the store.
func (s *StoreSubscriber) Handle(event Event) {
	if err := s.store.Append(context.Background(), event); err != nil {
		s.logger.Error("failed to persist event",
			"execution_id", event.ExecutionID,
			"kind", event.Kind,
			"seq", event.Seq,
			"error", err,
		)
	}
}

// Drain persists every event the subscription delivers until its channel
// closes. Intended to run on its own goroutine.
func (s *StoreSubscriber) Drain(sub *Subscription) {
	for event := range sub.Events() {
		s.Handle(event)
	}
}
