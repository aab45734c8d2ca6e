package outbox

import "context"

// Event is any domain event carrying a name identifier.
type Event interface {
	EventName() string
}

// Handler processes one published event.
type Handler func(ctx context.Context, e Event) error

// Publisher fans events out to interested subscribers after the publishing
// unit has committed. Delivery is best-effort, not durable.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers by event name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
