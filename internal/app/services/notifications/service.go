// Package notifications manages outbound notification endpoints and delivers
// canonical events to them.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lnwatch/dashboard/internal/app/domain/notification"
	"github.com/lnwatch/dashboard/internal/app/storage"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// ErrEndpointNotFound is returned when an endpoint does not exist or belongs
// to another account. Ownership mismatches are indistinguishable from absence
// on purpose.
var ErrEndpointNotFound = errors.New("notification endpoint not found")

// ErrInvalidEndpoint is returned when endpoint input fails validation.
var ErrInvalidEndpoint = errors.New("invalid notification endpoint")

// CreateEndpoint carries the caller-supplied fields for a new endpoint.
type CreateEndpoint struct {
	AccountID string
	UserID    string
	Name      string
	Type      notification.EndpointType
	URL       string
}

// UpdateEndpoint carries mutable endpoint fields. Nil fields are left as-is.
type UpdateEndpoint struct {
	Name   *string
	URL    *string
	Active *bool
}

// Service provides endpoint CRUD plus delivery probes.
type Service struct {
	store      storage.NotificationStore
	dispatcher *Dispatcher
	log        *logger.Logger
}

// NewService creates the notification endpoint service.
func NewService(store storage.NotificationStore, dispatcher *Dispatcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, dispatcher: dispatcher, log: log}
}

// Create validates and persists a new endpoint. New endpoints start active.
func (s *Service) Create(ctx context.Context, in CreateEndpoint) (notification.Endpoint, error) {
	if err := validateEndpoint(in.Name, in.Type, in.URL); err != nil {
		return notification.Endpoint{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return notification.Endpoint{}, fmt.Errorf("generate endpoint id: %w", err)
	}
	now := time.Now().UTC()
	ep := notification.Endpoint{
		ID:        id.String(),
		AccountID: in.AccountID,
		UserID:    in.UserID,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		URL:       in.URL,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.store.CreateEndpoint(ctx, ep)
	if err != nil {
		return notification.Endpoint{}, fmt.Errorf("create endpoint: %w", err)
	}
	s.log.WithField("endpoint_id", created.ID).WithField("type", created.Type).Info("notification endpoint created")
	return created, nil
}

// Get returns the endpoint if it exists and belongs to accountID.
func (s *Service) Get(ctx context.Context, accountID, id string) (notification.Endpoint, error) {
	ep, err := s.store.GetEndpoint(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notification.Endpoint{}, ErrEndpointNotFound
		}
		return notification.Endpoint{}, err
	}
	if ep.AccountID != accountID {
		return notification.Endpoint{}, ErrEndpointNotFound
	}
	return ep, nil
}

// List returns all endpoints of the account.
func (s *Service) List(ctx context.Context, accountID string) ([]notification.Endpoint, error) {
	return s.store.ListEndpoints(ctx, accountID)
}

// Update applies the given changes to an endpoint the account owns.
func (s *Service) Update(ctx context.Context, accountID, id string, in UpdateEndpoint) (notification.Endpoint, error) {
	ep, err := s.Get(ctx, accountID, id)
	if err != nil {
		return notification.Endpoint{}, err
	}
	if in.Name != nil {
		ep.Name = strings.TrimSpace(*in.Name)
	}
	if in.URL != nil {
		ep.URL = *in.URL
	}
	if in.Active != nil {
		ep.Active = *in.Active
	}
	if err := validateEndpoint(ep.Name, ep.Type, ep.URL); err != nil {
		return notification.Endpoint{}, err
	}
	ep.UpdatedAt = time.Now().UTC()
	updated, err := s.store.UpdateEndpoint(ctx, ep)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notification.Endpoint{}, ErrEndpointNotFound
		}
		return notification.Endpoint{}, fmt.Errorf("update endpoint: %w", err)
	}
	return updated, nil
}

// Delete removes an endpoint the account owns.
func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return err
	}
	if err := s.store.DeleteEndpoint(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEndpointNotFound
		}
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}

// TestEndpoint delivers a synthetic notification to an endpoint the account
// owns and reports whether the destination accepted it.
func (s *Service) TestEndpoint(ctx context.Context, accountID, id string) (bool, error) {
	ep, err := s.Get(ctx, accountID, id)
	if err != nil {
		return false, err
	}
	return s.dispatcher.Test(ctx, ep)
}

func validateEndpoint(name string, typ notification.EndpointType, rawURL string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be a valid http(s) URL", ErrInvalidEndpoint)
	}
	switch typ {
	case notification.TypeWebhook:
	case notification.TypeDiscord:
		if !strings.Contains(rawURL, "discord.com/api/webhooks/") {
			return fmt.Errorf("%w: discord url must be a discord webhook", ErrInvalidEndpoint)
		}
	default:
		return fmt.Errorf("%w: unknown endpoint type %q", ErrInvalidEndpoint, typ)
	}
	return nil
}
