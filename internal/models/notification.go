package models

import "time"

// Notification is dual-written: persisted as a durable record and
// published transiently to the notification bus. The two writes are
// independent; either may succeed while the other fails.
type Notification struct {
	ID             string    `json:"id" badgerhold:"key"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	RefLink        string    `json:"ref_link,omitempty"`
	Read           bool      `json:"read"`
	PlatformID     string    `json:"platform_id"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// TopicKey returns the bus topic for this notification's tenant.
// Formed by concatenation; exact-match only, no wildcards.
func (n *Notification) TopicKey() string {
	return n.PlatformID + "_" + n.OrganizationID
}

// TopicKey builds a subscription key from its parts
func TopicKey(platformID, organizationID string) string {
	return platformID + "_" + organizationID
}
