package shared

import "context"

// EventHandler receives events published by services and the reconciler,
// such as order changes and sync notifications.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types to deliver. Empty means every event.
	EventTypes() []string
}

// EventPublisher is what services and the reconciler publish through. A nil
// publisher is allowed wherever one is optional.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}
