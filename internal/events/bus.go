package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(StreamOnEvent{...})
func (b *Bus) Publish(ev Event) {
	// Use type switch to call the generic Publish with the correct type.
	switch e := ev.(type) {
	case NegotiatedEvent:
		event.Publish(b.dispatcher, e)
	case StreamOnEvent:
		event.Publish(b.dispatcher, e)
	case StreamOffEvent:
		event.Publish(b.dispatcher, e)
	case DeviceLostEvent:
		event.Publish(b.dispatcher, e)
	case FrameDroppedEvent:
		event.Publish(b.dispatcher, e)
	case EncodeFailedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives (type inference).
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e StreamOnEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	// kelindar/event determines the event type from the handler's
	// signature, so dispatch on the concrete handler type here.
	switch h := handler.(type) {
	case func(NegotiatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamOnEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamOffEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceLostEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EncodeFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}