package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/lightning"
	"github.com/lnwatch/dashboard/internal/app/metrics"
	"github.com/lnwatch/dashboard/internal/app/storage"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// Identity is the account/user/node context a pipeline persists events under.
// Events without a complete identity are never persisted.
type Identity struct {
	AccountID string
	UserID    string
	NodeID    string
	NodeAlias string
}

// Complete reports whether the identity can attribute an event.
func (id Identity) Complete() bool {
	return id.AccountID != "" && id.UserID != "" && id.NodeID != ""
}

// Dispatcher delivers a persisted event to the account's configured
// notification endpoints.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt event.Event) error
}

// SeverityCounts aggregates per-severity event totals for an account.
type SeverityCounts struct {
	Info     int64
	Warning  int64
	Critical int64
}

// Service orchestrates normalise, persist and notification hand-off, and
// serves read queries over stored events.
type Service struct {
	store      storage.EventStore
	dispatcher Dispatcher
	log        *logger.Logger

	dispatchTimeout time.Duration
}

// New constructs an event service. A nil dispatcher disables notification
// hand-off; persistence still happens.
func New(store storage.EventStore, dispatcher Dispatcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Service{
		store:           store,
		dispatcher:      dispatcher,
		log:             log,
		dispatchTimeout: 15 * time.Second,
	}
}

// WithDispatchTimeout overrides how long an async notification hand-off may
// run before it is abandoned. Non-positive values keep the default.
func (s *Service) WithDispatchTimeout(d time.Duration) *Service {
	if d > 0 {
		s.dispatchTimeout = d
	}
	return s
}

// Dispatch normalises a raw event, persists it synchronously and hands the
// stored record to the notification dispatcher without blocking the caller.
// Persistence failures surface to the caller; dispatch failures are logged
// only and never affect the persisted event.
func (s *Service) Dispatch(ctx context.Context, id Identity, raw lightning.RawEvent) (event.Event, error) {
	if !id.Complete() {
		return event.Event{}, errors.New("event identity context incomplete")
	}

	norm, err := Normalize(raw)
	if err != nil {
		return event.Event{}, err
	}

	data, err := json.Marshal(norm.Payload)
	if err != nil {
		return event.Event{}, err
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		return event.Event{}, err
	}

	create := event.CreateEvent{
		ID:          eventID.String(),
		AccountID:   id.AccountID,
		UserID:      id.UserID,
		NodeID:      id.NodeID,
		NodeAlias:   id.NodeAlias,
		Category:    norm.Category,
		Severity:    norm.Severity,
		Title:       norm.Title,
		Description: norm.Description,
		Data:        string(data),
		Timestamp:   time.Now().UTC(),
	}

	evt, err := s.store.CreateEvent(ctx, create)
	if err != nil {
		metrics.RecordEventDropped("persist")
		return event.Event{}, err
	}
	metrics.RecordEventPersisted(string(evt.Category), string(evt.Severity))

	if s.dispatcher != nil {
		go func() {
			dispatchCtx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
			defer cancel()
			if err := s.dispatcher.Dispatch(dispatchCtx, evt); err != nil {
				s.log.WithError(err).
					WithField("event_id", evt.ID).
					Error("notification dispatch failed")
			}
		}()
	}

	return evt, nil
}

// Consume drains the collector queue until it closes or ctx is cancelled.
// A single event's persistence failure is logged and the loop continues;
// later events must not be lost to an earlier failure.
func (s *Service) Consume(ctx context.Context, id Identity, queue <-chan lightning.RawEvent) {
	log := s.log.WithField("node_id", id.NodeID)
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-queue:
			if !ok {
				return
			}
			if _, err := s.Dispatch(ctx, id, raw); err != nil {
				log.WithError(err).Error("failed to process node event")
			}
		}
	}
}

// Query returns canonical events for an account with payloads re-parsed from
// storage. A record whose payload fails to parse is returned with an empty
// payload and a logged warning; it never fails the whole query.
func (s *Service) Query(ctx context.Context, accountID string, filters event.Filters) ([]event.Response, error) {
	stored, err := s.store.ListEvents(ctx, accountID, filters)
	if err != nil {
		return nil, err
	}

	responses := make([]event.Response, 0, len(stored))
	for _, evt := range stored {
		data := map[string]any{}
		if evt.Data != "" {
			if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
				s.log.WithError(err).
					WithField("event_id", evt.ID).
					Warn("failed to parse stored event payload")
				data = map[string]any{}
			}
		}
		responses = append(responses, event.Response{
			ID:          evt.ID,
			AccountID:   evt.AccountID,
			UserID:      evt.UserID,
			NodeID:      evt.NodeID,
			NodeAlias:   evt.NodeAlias,
			Category:    evt.Category,
			Severity:    evt.Severity,
			Title:       evt.Title,
			Description: evt.Description,
			Data:        data,
			Timestamp:   evt.Timestamp,
			CreatedAt:   evt.CreatedAt,
		})
	}
	return responses, nil
}

// Count returns the number of stored events matching the filters.
func (s *Service) Count(ctx context.Context, accountID string, filters event.Filters) (int64, error) {
	return s.store.CountEvents(ctx, accountID, filters)
}

// CountBySeverity returns per-severity totals for an account.
func (s *Service) CountBySeverity(ctx context.Context, accountID string) (SeverityCounts, error) {
	var counts SeverityCounts

	info, err := s.store.CountEventsBySeverity(ctx, accountID, event.SeverityInfo)
	if err != nil {
		return SeverityCounts{}, err
	}
	warning, err := s.store.CountEventsBySeverity(ctx, accountID, event.SeverityWarning)
	if err != nil {
		return SeverityCounts{}, err
	}
	critical, err := s.store.CountEventsBySeverity(ctx, accountID, event.SeverityCritical)
	if err != nil {
		return SeverityCounts{}, err
	}

	counts.Info = info
	counts.Warning = warning
	counts.Critical = critical
	return counts, nil
}
