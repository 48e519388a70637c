package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
)

// EventSubscriber bridges the event bus to the WebSocket handler with
// config-driven filtering and throttling
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
}

// NewEventSubscriber creates and initializes an event subscriber
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
	}

	// Empty whitelist means allow all events
	s.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
	}

	s.throttlers = make(map[string]*rate.Limiter)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		for eventType, intervalStr := range config.ThrottleIntervals {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				// One event per interval, burst of one
				s.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Throttler initialized for event type")
			} else {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
			}
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()

	return s
}

// SubscribeAll registers subscriptions for all broadcast-worthy events
func (s *EventSubscriber) SubscribeAll() {
	if s.eventService == nil {
		s.logger.Warn().Msg("Cannot subscribe to events - eventService is nil")
		return
	}

	s.subscribe(interfaces.EventSyncStarted, s.handleSyncStarted)
	s.subscribe(interfaces.EventSyncCompleted, s.handleSyncCompleted)
	s.subscribe(interfaces.EventSyncFailed, s.handleSyncFailed)
	s.subscribe(interfaces.EventSweepCompleted, s.handleSweepCompleted)
	s.subscribe(interfaces.EventIntegrationCreated, s.handleIntegrationChange("created"))
	s.subscribe(interfaces.EventIntegrationUpdated, s.handleIntegrationChange("updated"))
	s.subscribe(interfaces.EventIntegrationDeleted, s.handleIntegrationChange("deleted"))
	s.subscribe(interfaces.EventTeamCreated, s.handleTeamChange("created"))
	s.subscribe(interfaces.EventTeamUpdated, s.handleTeamChange("updated"))
	s.subscribe(interfaces.EventTeamDeactivated, s.handleTeamChange("deactivated"))

	s.logger.Info().Msg("EventSubscriber registered for sync, sweep, integration and team events")
}

func (s *EventSubscriber) subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) {
	if _, err := s.eventService.Subscribe(eventType, handler); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe to event")
	}
}

func (s *EventSubscriber) handleSyncStarted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventSyncStarted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid sync started event payload type")
		return nil
	}

	s.handler.BroadcastSyncStatus(SyncStatusUpdate{
		IntegrationID: getString(payload, "integration_id"),
		SourceType:    getString(payload, "type"),
		Status:        "started",
		Trigger:       getString(payload, "trigger"),
		Timestamp:     getTimestamp(payload),
	})
	return nil
}

func (s *EventSubscriber) handleSyncCompleted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventSyncCompleted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid sync completed event payload type")
		return nil
	}

	s.handler.BroadcastSyncStatus(SyncStatusUpdate{
		IntegrationID: getString(payload, "integration_id"),
		Status:        "completed",
		Outcome:       getString(payload, "outcome"),
		SnapshotID:    getString(payload, "snapshot_id"),
		NoActivity:    getBool(payload, "no_activity"),
		Timestamp:     getTimestamp(payload),
	})
	return nil
}

func (s *EventSubscriber) handleSyncFailed(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventSyncFailed)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid sync failed event payload type")
		return nil
	}

	s.handler.BroadcastSyncStatus(SyncStatusUpdate{
		IntegrationID: getString(payload, "integration_id"),
		Status:        "failed",
		Error:         getString(payload, "error"),
		ErrorKind:     getString(payload, "kind"),
		Retryable:     getBool(payload, "retryable"),
		Timestamp:     getTimestamp(payload),
	})
	return nil
}

func (s *EventSubscriber) handleSweepCompleted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventSweepCompleted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid sweep completed event payload type")
		return nil
	}

	s.handler.BroadcastSweepSummary(SweepSummaryUpdate{
		JobID:      getString(payload, "job_id"),
		Total:      getInt(payload, "total"),
		Succeeded:  getInt(payload, "succeeded"),
		Failed:     getInt(payload, "failed"),
		Skipped:    getInt(payload, "skipped"),
		DurationMs: getInt(payload, "duration_ms"),
		Timestamp:  getTimestamp(payload),
	})
	return nil
}

func (s *EventSubscriber) handleIntegrationChange(action string) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		if !s.shouldBroadcastEvent(string(event.Type)) {
			return nil
		}

		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			s.logger.Warn().Str("action", action).Msg("Invalid integration event payload type")
			return nil
		}

		s.handler.BroadcastIntegrationChange(IntegrationChangeUpdate{
			IntegrationID: getString(payload, "integration_id"),
			Action:        action,
			SourceType:    getString(payload, "type"),
			TeamID:        getString(payload, "team_id"),
			Timestamp:     getTimestamp(payload),
		})
		return nil
	}
}

func (s *EventSubscriber) handleTeamChange(action string) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		if !s.shouldBroadcastEvent(string(event.Type)) {
			return nil
		}

		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			s.logger.Warn().Str("action", action).Msg("Invalid team event payload type")
			return nil
		}

		s.handler.BroadcastTeamChange(TeamChangeUpdate{
			TeamID:    getString(payload, "team_id"),
			Action:    action,
			Timestamp: getTimestamp(payload),
		})
		return nil
	}
}

// shouldBroadcastEvent checks if an event should be broadcast based on whitelist and throttling
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	// Check whitelist (empty allowedEvents = allow all)
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	if limiter, ok := s.throttlers[eventType]; ok {
		if !limiter.Allow() {
			s.logger.Debug().
				Str("event_type", eventType).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	}

	return true
}
