// Package notification models user-configured outbound notification endpoints.
package notification

import "time"

// EndpointType selects the delivery format for an endpoint.
type EndpointType string

const (
	TypeWebhook EndpointType = "webhook"
	TypeDiscord EndpointType = "discord"
)

// Endpoint is a configured destination for canonical event notifications.
type Endpoint struct {
	ID        string
	AccountID string
	UserID    string
	Name      string
	Type      EndpointType
	URL       string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
