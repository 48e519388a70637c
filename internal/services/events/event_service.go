// Package events implements the in-process pub/sub bus connecting the
// sync pipeline to the WebSocket broadcaster and other listeners.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
)

// Service implements EventService with per-type subscriber sets
type Service struct {
	subscribers map[interfaces.EventType]map[string]interfaces.EventHandler
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType]map[string]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[eventType] == nil {
		s.subscribers[eventType] = make(map[string]interfaces.EventHandler)
	}
	token := uuid.New().String()
	s.subscribers[eventType][token] = handler

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return token, nil
}

// Unsubscribe removes a subscription by its token
func (s *Service) Unsubscribe(eventType interfaces.EventType, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handlers := s.subscribers[eventType]
	if _, ok := handlers[token]; !ok {
		return fmt.Errorf("no subscription %s for event type: %s", token, eventType)
	}
	delete(handlers, token)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Msg("Event handler unsubscribed")
	return nil
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		h := handler
		common.SafeGo(s.logger, "publish:"+string(event.Type), func() {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		})
	}

	return nil
}

// PublishSync sends an event to all subscribers and waits for them
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	errCount := 0
	for range errChan {
		errCount++
	}
	if errCount > 0 {
		return fmt.Errorf("event handlers failed: %d errors", errCount)
	}

	return nil
}

// Close drops all subscriptions
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType]map[string]interfaces.EventHandler)
	s.logger.Info().Msg("Event service closed")

	return nil
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handlers := make([]interfaces.EventHandler, 0, len(s.subscribers[eventType]))
	for _, handler := range s.subscribers[eventType] {
		handlers = append(handlers, handler)
	}
	return handlers
}
