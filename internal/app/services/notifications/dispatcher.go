package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/notification"
	"github.com/lnwatch/dashboard/internal/app/metrics"
	"github.com/lnwatch/dashboard/internal/app/storage"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// Dispatcher delivers persisted events to the active notification endpoints
// of the event's account. Each endpoint gets exactly one attempt; retry and
// back-off policy live behind this boundary and are intentionally absent.
type Dispatcher struct {
	store   storage.NotificationStore
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher with a shared outbound rate limit.
func NewDispatcher(store storage.NotificationStore, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notification-dispatcher")
	}
	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		log:     log,
	}
}

// Dispatch posts the event to every active endpoint of its account. Delivery
// failures are logged per endpoint; the first one is returned so callers can
// count it, but later endpoints are still attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, evt event.Event) error {
	endpoints, err := d.store.ListActiveEndpoints(ctx, evt.AccountID)
	if err != nil {
		return fmt.Errorf("load notification endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	var firstErr error
	for _, ep := range endpoints {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := d.deliver(ctx, ep, evt); err != nil {
			metrics.RecordNotificationDelivery(string(ep.Type), false)
			d.log.WithError(err).
				WithField("endpoint_id", ep.ID).
				WithField("event_id", evt.ID).
				Warn("notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.RecordNotificationDelivery(string(ep.Type), true)
	}
	return firstErr
}

// Test sends a synthetic event to the endpoint and reports reachability.
func (d *Dispatcher) Test(ctx context.Context, ep notification.Endpoint) (bool, error) {
	probe := event.Event{
		ID:          "test",
		AccountID:   ep.AccountID,
		Category:    event.CategoryAll,
		Severity:    event.SeverityInfo,
		Title:       "Test Notification",
		Description: "This is a test notification from your dashboard.",
		Data:        "{}",
		Timestamp:   time.Now().UTC(),
	}
	if err := d.deliver(ctx, ep, probe); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ep notification.Endpoint, evt event.Event) error {
	var body []byte
	var err error
	switch ep.Type {
	case notification.TypeDiscord:
		body, err = discordBody(evt)
	default:
		body, err = webhookBody(evt)
	}
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("endpoint %s returned status %d", ep.ID, resp.StatusCode)
	}
	return nil
}

func webhookBody(evt event.Event) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":          evt.ID,
		"node_id":     evt.NodeID,
		"node_alias":  evt.NodeAlias,
		"category":    evt.Category,
		"severity":    evt.Severity,
		"title":       evt.Title,
		"description": evt.Description,
		"data":        json.RawMessage(rawOrEmpty(evt.Data)),
		"timestamp":   evt.Timestamp,
	})
}

func discordBody(evt event.Event) ([]byte, error) {
	embed := map[string]any{
		"title":       evt.Title,
		"description": evt.Description,
		"color":       discordColor(evt.Severity),
		"timestamp":   evt.Timestamp.Format(time.RFC3339),
		"fields": []map[string]any{
			{"name": "Node", "value": nodeLabel(evt), "inline": true},
			{"name": "Category", "value": string(evt.Category), "inline": true},
			{"name": "Severity", "value": string(evt.Severity), "inline": true},
		},
	}
	return json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
}

func nodeLabel(evt event.Event) string {
	if evt.NodeAlias != "" {
		return evt.NodeAlias
	}
	if evt.NodeID != "" {
		return evt.NodeID
	}
	return "unknown"
}

func discordColor(severity event.Severity) int {
	switch severity {
	case event.SeverityCritical:
		return 0xe74c3c
	case event.SeverityWarning:
		return 0xf1c40f
	default:
		return 0x2ecc71
	}
}

func rawOrEmpty(data string) string {
	if data == "" {
		return "{}"
	}
	return data
}
