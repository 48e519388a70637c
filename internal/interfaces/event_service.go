package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventIntegrationCreated EventType = "integration.created"
	EventIntegrationUpdated EventType = "integration.updated"
	EventIntegrationDeleted EventType = "integration.deleted"
	EventSyncStarted        EventType = "sync.started"
	EventSyncCompleted      EventType = "sync.completed"
	EventSyncFailed         EventType = "sync.failed"
	EventSweepCompleted     EventType = "sweep.completed"
	EventTeamCreated        EventType = "team.created"
	EventTeamUpdated        EventType = "team.updated"
	EventTeamDeactivated    EventType = "team.deactivated"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type. The returned token identifies the
	// subscription for Unsubscribe.
	Subscribe(eventType EventType, handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by its token
	Unsubscribe(eventType EventType, token string) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
