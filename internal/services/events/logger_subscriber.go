package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Extract common fields from payload if available
		var integrationID, jobID, trigger, outcome string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["integration_id"].(string); ok {
				integrationID = id
			}
			if id, ok := payload["job_id"].(string); ok {
				jobID = id
			}
			if t, ok := payload["trigger"].(string); ok {
				trigger = t
			}
			if o, ok := payload["outcome"].(string); ok {
				outcome = o
			}
		}

		// Log event with structured fields
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if integrationID != "" {
			logEvent = logEvent.Str("integration_id", integrationID)
		}
		if jobID != "" {
			logEvent = logEvent.Str("job_id", jobID)
		}
		if trigger != "" {
			logEvent = logEvent.Str("trigger", trigger)
		}
		if outcome != "" {
			logEvent = logEvent.Str("outcome", outcome)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	// Subscribe to all event types
	eventTypes := []interfaces.EventType{
		interfaces.EventIntegrationCreated,
		interfaces.EventIntegrationUpdated,
		interfaces.EventIntegrationDeleted,
		interfaces.EventSyncStarted,
		interfaces.EventSyncCompleted,
		interfaces.EventSyncFailed,
		interfaces.EventSweepCompleted,
		interfaces.EventTeamCreated,
		interfaces.EventTeamUpdated,
		interfaces.EventTeamDeactivated,
	}

	for _, eventType := range eventTypes {
		if _, err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
