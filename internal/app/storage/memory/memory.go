package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/notification"
	"github.com/lnwatch/dashboard/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu        sync.RWMutex
	events    map[string]event.Event
	order     []string
	endpoints map[string]notification.Endpoint
}

var _ storage.EventStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		events:    make(map[string]event.Event),
		endpoints: make(map[string]notification.Endpoint),
	}
}

// EventStore implementation --------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, evt event.CreateEvent) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return event.Event{}, err
		}
		evt.ID = id.String()
	} else if _, exists := s.events[evt.ID]; exists {
		return event.Event{}, fmt.Errorf("event %s already exists", evt.ID)
	}

	stored := event.Event{
		ID:          evt.ID,
		AccountID:   evt.AccountID,
		UserID:      evt.UserID,
		NodeID:      evt.NodeID,
		NodeAlias:   evt.NodeAlias,
		Category:    evt.Category,
		Severity:    evt.Severity,
		Title:       evt.Title,
		Description: evt.Description,
		Data:        evt.Data,
		Timestamp:   evt.Timestamp,
		CreatedAt:   time.Now().UTC(),
	}

	s.events[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored, nil
}

func (s *Store) ListEvents(_ context.Context, accountID string, filters event.Filters) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []event.Event
	for _, id := range s.order {
		evt := s.events[id]
		if evt.AccountID != accountID || !matches(evt, filters) {
			continue
		}
		result = append(result, evt)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return nil, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (s *Store) CountEvents(_ context.Context, accountID string, filters event.Filters) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, evt := range s.events {
		if evt.AccountID == accountID && matches(evt, filters) {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountEventsBySeverity(_ context.Context, accountID string, severity event.Severity) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, evt := range s.events {
		if evt.AccountID == accountID && evt.Severity == severity {
			count++
		}
	}
	return count, nil
}

func matches(evt event.Event, filters event.Filters) bool {
	if filters.Category != nil && evt.Category != *filters.Category {
		return false
	}
	if filters.Severity != nil && evt.Severity != *filters.Severity {
		return false
	}
	if filters.NodeID != nil && evt.NodeID != *filters.NodeID {
		return false
	}
	if filters.Since != nil && evt.Timestamp.Before(*filters.Since) {
		return false
	}
	if filters.Until != nil && evt.Timestamp.After(*filters.Until) {
		return false
	}
	return true
}

// NotificationStore implementation -------------------------------------------

func (s *Store) CreateEndpoint(_ context.Context, ep notification.Endpoint) (notification.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep.ID == "" {
		ep.ID = uuid.NewString()
	} else if _, exists := s.endpoints[ep.ID]; exists {
		return notification.Endpoint{}, fmt.Errorf("endpoint %s already exists", ep.ID)
	}

	now := time.Now().UTC()
	ep.CreatedAt = now
	ep.UpdatedAt = now

	s.endpoints[ep.ID] = ep
	return ep, nil
}

func (s *Store) GetEndpoint(_ context.Context, id string) (notification.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return notification.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, storage.ErrNotFound)
	}
	return ep, nil
}

func (s *Store) ListEndpoints(_ context.Context, accountID string) ([]notification.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Endpoint
	for _, ep := range s.endpoints {
		if ep.AccountID == accountID {
			result = append(result, ep)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListActiveEndpoints(ctx context.Context, accountID string) ([]notification.Endpoint, error) {
	all, err := s.ListEndpoints(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var result []notification.Endpoint
	for _, ep := range all {
		if ep.Active {
			result = append(result, ep)
		}
	}
	return result, nil
}

func (s *Store) UpdateEndpoint(_ context.Context, ep notification.Endpoint) (notification.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.endpoints[ep.ID]
	if !ok {
		return notification.Endpoint{}, fmt.Errorf("endpoint %s: %w", ep.ID, storage.ErrNotFound)
	}

	ep.CreatedAt = original.CreatedAt
	ep.UpdatedAt = time.Now().UTC()
	s.endpoints[ep.ID] = ep
	return ep, nil
}

func (s *Store) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return fmt.Errorf("endpoint %s: %w", id, storage.ErrNotFound)
	}
	delete(s.endpoints, id)
	return nil
}
