package interfaces

import "github.com/valora-io/valora/internal/models"

// NotificationHandler receives notifications published on a subscribed topic
type NotificationHandler func(n models.Notification)

// Subscription is a handle returned by Subscribe. Cancel removes the
// subscription; calling it more than once is safe.
type Subscription interface {
	Cancel()
}

// EventService is the in-process notification bus. Topics are tenant
// keys (platformID_organizationID) matched exactly; publishing to a
// topic with no subscribers is a no-op, and there is no replay for
// late subscribers.
type EventService interface {
	// Subscribe registers a handler for a topic and returns its handle
	Subscribe(topic string, handler NotificationHandler) Subscription

	// Publish delivers a notification to the subscribers of its topic.
	// Delivery is synchronous; handlers must not block.
	Publish(n models.Notification)

	// SubscriberCount reports the live subscriber count for a topic
	SubscriberCount(topic string) int

	// Close drops all subscriptions
	Close() error
}
