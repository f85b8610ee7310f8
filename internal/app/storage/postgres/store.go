package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/notification"
	"github.com/lnwatch/dashboard/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.EventStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- EventStore -------------------------------------------------------------

func (s *Store) CreateEvent(ctx context.Context, evt event.CreateEvent) (event.Event, error) {
	if evt.AccountID == "" {
		return event.Event{}, errors.New("account_id required")
	}
	if evt.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return event.Event{}, err
		}
		evt.ID = id.String()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, account_id, user_id, node_id, node_alias, category, severity, title, description, data, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, stored.ID, stored.AccountID, stored.UserID, stored.NodeID, stored.NodeAlias,
		string(stored.Category), string(stored.Severity), stored.Title, stored.Description,
		stored.Data, stored.Timestamp, stored.CreatedAt)
	if err != nil {
		return event.Event{}, err
	}
	return stored, nil
}

func (s *Store) ListEvents(ctx context.Context, accountID string, filters event.Filters) ([]event.Event, error) {
	where, args := eventFilterClauses(accountID, filters)

	query := `
		SELECT id, account_id, user_id, node_id, node_alias, category, severity, title, description, data, timestamp, created_at
		FROM events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []event.Event
	for rows.Next() {
		var (
			evt      event.Event
			category string
			severity string
		)
		if err := rows.Scan(&evt.ID, &evt.AccountID, &evt.UserID, &evt.NodeID, &evt.NodeAlias,
			&category, &severity, &evt.Title, &evt.Description, &evt.Data,
			&evt.Timestamp, &evt.CreatedAt); err != nil {
			return nil, err
		}
		evt.Category = event.Category(category)
		evt.Severity = event.Severity(severity)
		result = append(result, evt)
	}
	return result, rows.Err()
}

func (s *Store) CountEvents(ctx context.Context, accountID string, filters event.Filters) (int64, error) {
	where, args := eventFilterClauses(accountID, filters)

	query := `SELECT COUNT(*) FROM events WHERE ` + strings.Join(where, " AND ")

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountEventsBySeverity(ctx context.Context, accountID string, severity event.Severity) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE account_id = $1 AND severity = $2
	`, accountID, string(severity)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func eventFilterClauses(accountID string, filters event.Filters) ([]string, []any) {
	where := []string{"account_id = $1"}
	args := []any{accountID}

	if filters.Category != nil {
		args = append(args, string(*filters.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filters.Severity != nil {
		args = append(args, string(*filters.Severity))
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filters.NodeID != nil {
		args = append(args, *filters.NodeID)
		where = append(where, fmt.Sprintf("node_id = $%d", len(args)))
	}
	if filters.Since != nil {
		args = append(args, *filters.Since)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filters.Until != nil {
		args = append(args, *filters.Until)
		where = append(where, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	return where, args
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateEndpoint(ctx context.Context, ep notification.Endpoint) (notification.Endpoint, error) {
	if ep.AccountID == "" {
		return notification.Endpoint{}, errors.New("account_id required")
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ep.CreatedAt = now
	ep.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_endpoints (id, account_id, user_id, name, endpoint_type, url, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ep.ID, ep.AccountID, ep.UserID, ep.Name, string(ep.Type), ep.URL, ep.Active, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return notification.Endpoint{}, err
	}
	return ep, nil
}

func (s *Store) GetEndpoint(ctx context.Context, id string) (notification.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, user_id, name, endpoint_type, url, is_active, created_at, updated_at
		FROM notification_endpoints
		WHERE id = $1
	`, id)

	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notification.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, storage.ErrNotFound)
	}
	return ep, err
}

func (s *Store) ListEndpoints(ctx context.Context, accountID string) ([]notification.Endpoint, error) {
	return s.listEndpoints(ctx, `
		SELECT id, account_id, user_id, name, endpoint_type, url, is_active, created_at, updated_at
		FROM notification_endpoints
		WHERE account_id = $1
		ORDER BY created_at
	`, accountID)
}

func (s *Store) ListActiveEndpoints(ctx context.Context, accountID string) ([]notification.Endpoint, error) {
	return s.listEndpoints(ctx, `
		SELECT id, account_id, user_id, name, endpoint_type, url, is_active, created_at, updated_at
		FROM notification_endpoints
		WHERE account_id = $1 AND is_active
		ORDER BY created_at
	`, accountID)
}

func (s *Store) listEndpoints(ctx context.Context, query, accountID string) ([]notification.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, rows.Err()
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep notification.Endpoint) (notification.Endpoint, error) {
	existing, err := s.GetEndpoint(ctx, ep.ID)
	if err != nil {
		return notification.Endpoint{}, err
	}

	ep.CreatedAt = existing.CreatedAt
	ep.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_endpoints
		SET name = $2, url = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`, ep.ID, ep.Name, ep.URL, ep.Active, ep.UpdatedAt)
	if err != nil {
		return notification.Endpoint{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notification.Endpoint{}, fmt.Errorf("endpoint %s: %w", ep.ID, storage.ErrNotFound)
	}
	return ep, nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notification_endpoints WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("endpoint %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scannable) (notification.Endpoint, error) {
	var (
		ep     notification.Endpoint
		epType string
	)
	if err := row.Scan(&ep.ID, &ep.AccountID, &ep.UserID, &ep.Name, &epType, &ep.URL,
		&ep.Active, &ep.CreatedAt, &ep.UpdatedAt); err != nil {
		return notification.Endpoint{}, err
	}
	ep.Type = notification.EndpointType(epType)
	return ep, nil
}
