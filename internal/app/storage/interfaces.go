package storage

import (
	"context"
	"errors"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/notification"
)

// ErrNotFound is returned when a requested record does not exist. Both
// backends wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("record not found")

// EventStore persists canonical events.
type EventStore interface {
	CreateEvent(ctx context.Context, evt event.CreateEvent) (event.Event, error)
	ListEvents(ctx context.Context, accountID string, filters event.Filters) ([]event.Event, error)
	CountEvents(ctx context.Context, accountID string, filters event.Filters) (int64, error)
	CountEventsBySeverity(ctx context.Context, accountID string, severity event.Severity) (int64, error)
}

// NotificationStore persists outbound notification endpoints.
type NotificationStore interface {
	CreateEndpoint(ctx context.Context, ep notification.Endpoint) (notification.Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (notification.Endpoint, error)
	ListEndpoints(ctx context.Context, accountID string) ([]notification.Endpoint, error)
	ListActiveEndpoints(ctx context.Context, accountID string) ([]notification.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep notification.Endpoint) (notification.Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error
}
