package events

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

// Service implements the notification bus with per-topic subscriber sets.
// Topics are tenant keys matched exactly; there is no wildcard and no
// replay for late subscribers. Instances are independent, so tests can
// run isolated buses side by side.
type Service struct {
	subscribers map[string]map[uint64]interfaces.NotificationHandler
	nextID      uint64
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new notification bus
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[string]map[uint64]interfaces.NotificationHandler),
		logger:      logger,
	}
}

// subscription implements interfaces.Subscription
type subscription struct {
	svc   *Service
	topic string
	id    uint64
	once  sync.Once
}

// Cancel removes the subscription from its topic
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.svc.mu.Lock()
		defer s.svc.mu.Unlock()

		handlers := s.svc.subscribers[s.topic]
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(s.svc.subscribers, s.topic)
		}

		s.svc.logger.Debug().
			Str("topic", s.topic).
			Int("subscriber_count", len(handlers)).
			Msg("Notification handler unsubscribed")
	})
}

// Subscribe registers a handler for a topic and returns its handle
func (s *Service) Subscribe(topic string, handler interfaces.NotificationHandler) interfaces.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[topic] == nil {
		s.subscribers[topic] = make(map[uint64]interfaces.NotificationHandler)
	}
	s.nextID++
	id := s.nextID
	s.subscribers[topic][id] = handler

	s.logger.Debug().
		Str("topic", topic).
		Int("subscriber_count", len(s.subscribers[topic])).
		Msg("Notification handler subscribed")

	return &subscription{svc: s, topic: topic, id: id}
}

// Publish delivers a notification to the subscribers of its exact topic.
// Delivery is synchronous on the caller's goroutine; a topic with no
// subscribers is a silent no-op.
func (s *Service) Publish(n models.Notification) {
	topic := n.TopicKey()

	s.mu.RLock()
	handlers := make([]interfaces.NotificationHandler, 0, len(s.subscribers[topic]))
	for _, h := range s.subscribers[topic] {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Debug().
			Str("topic", topic).
			Msg("No subscribers for notification topic")
		return
	}

	s.logger.Debug().
		Str("topic", topic).
		Str("notification_id", n.ID).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing notification")

	for _, handler := range handlers {
		handler(n)
	}
}

// SubscriberCount reports the live subscriber count for a topic
func (s *Service) SubscriberCount(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[topic])
}

// Close drops all subscriptions
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[string]map[uint64]interfaces.NotificationHandler)
	s.logger.Info().Msg("Notification bus closed")

	return nil
}
