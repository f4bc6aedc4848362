// eventsink.go provides an in-memory implementation of EventSink.
//
// It stores all published events for inspection in tests:
//   - GetEvents(): Returns all published events
//   - SetOnPublish(): Register callback for event assertions
//
// All operations are thread-safe. For production, use the SNS adapter.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// ErrSinkClosed is returned by Publish after Close.
var ErrSinkClosed = errors.New("event sink closed")

// EventSink is an in-memory implementation of the EventSink port for testing.
type EventSink struct {
	mu     sync.RWMutex
	events []outbound.AnchorEvent
	closed bool

	onPublish func(outbound.AnchorEvent)
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{
		events: make([]outbound.AnchorEvent, 0),
	}
}

// Publish stores the event in memory.
func (s *EventSink) Publish(ctx context.Context, event outbound.AnchorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	s.events = append(s.events, event)

	if s.onPublish != nil {
		s.onPublish(event)
	}
	return nil
}

// Close marks the sink as closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetEvents returns a copy of all published events.
func (s *EventSink) GetEvents() []outbound.AnchorEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbound.AnchorEvent(nil), s.events...)
}

// SetOnPublish registers a callback invoked for every published event.
func (s *EventSink) SetOnPublish(fn func(outbound.AnchorEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = fn
}
