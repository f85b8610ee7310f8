package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/notification"
	"github.com/lnwatch/dashboard/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	dispatcher := NewDispatcher(store, nil)
	return NewService(store, dispatcher, nil), store
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateEndpoint
	}{
		{"empty name", CreateEndpoint{AccountID: "acct-1", UserID: "user-1", Type: notification.TypeWebhook, URL: "https://example.com/hook"}},
		{"bad scheme", CreateEndpoint{AccountID: "acct-1", UserID: "user-1", Name: "hook", Type: notification.TypeWebhook, URL: "ftp://example.com"}},
		{"not a url", CreateEndpoint{AccountID: "acct-1", UserID: "user-1", Name: "hook", Type: notification.TypeWebhook, URL: "not a url"}},
		{"discord non-webhook url", CreateEndpoint{AccountID: "acct-1", UserID: "user-1", Name: "discord", Type: notification.TypeDiscord, URL: "https://example.com/hook"}},
		{"unknown type", CreateEndpoint{AccountID: "acct-1", UserID: "user-1", Name: "hook", Type: "pager", URL: "https://example.com/hook"}},
	}

	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.in); !errors.Is(err, ErrInvalidEndpoint) {
			t.Fatalf("%s: expected ErrInvalidEndpoint, got %v", tc.name, err)
		}
	}
}

func TestService_EndpointLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ep, err := svc.Create(ctx, CreateEndpoint{
		AccountID: "acct-1",
		UserID:    "user-1",
		Name:      "ops hook",
		Type:      notification.TypeWebhook,
		URL:       "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ep.ID == "" || !ep.Active {
		t.Fatalf("unexpected endpoint state: %#v", ep)
	}

	discord, err := svc.Create(ctx, CreateEndpoint{
		AccountID: "acct-1",
		UserID:    "user-1",
		Name:      "alerts",
		Type:      notification.TypeDiscord,
		URL:       "https://discord.com/api/webhooks/123/abc",
	})
	if err != nil {
		t.Fatalf("create discord endpoint: %v", err)
	}

	list, err := svc.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(list))
	}

	name := "ops hook v2"
	active := false
	updated, err := svc.Update(ctx, "acct-1", ep.ID, UpdateEndpoint{Name: &name, Active: &active})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.Active {
		t.Fatalf("update not applied: %#v", updated)
	}

	if err := svc.Delete(ctx, "acct-1", discord.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "acct-1", discord.ID); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestService_OwnershipMasksAsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ep, err := svc.Create(ctx, CreateEndpoint{
		AccountID: "acct-1",
		UserID:    "user-1",
		Name:      "hook",
		Type:      notification.TypeWebhook,
		URL:       "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "acct-2", ep.ID); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("foreign get should report not found, got %v", err)
	}
	if err := svc.Delete(ctx, "acct-2", ep.ID); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("foreign delete should report not found, got %v", err)
	}
	if _, err := svc.Get(ctx, "acct-1", ep.ID); err != nil {
		t.Fatalf("owner access broken after foreign attempts: %v", err)
	}
}

func TestDispatcher_DeliversToActiveEndpoints(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.New()
	ctx := context.Background()
	for _, ep := range []notification.Endpoint{
		{AccountID: "acct-1", Name: "hook", Type: notification.TypeWebhook, URL: srv.URL, Active: true},
		{AccountID: "acct-1", Name: "inactive", Type: notification.TypeWebhook, URL: srv.URL, Active: false},
		{AccountID: "acct-2", Name: "other account", Type: notification.TypeWebhook, URL: srv.URL, Active: true},
	} {
		if _, err := store.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("seed endpoint: %v", err)
		}
	}

	d := NewDispatcher(store, nil)
	evt := event.Event{
		ID:          "evt-1",
		AccountID:   "acct-1",
		NodeID:      "lnd-1",
		NodeAlias:   "alice",
		Category:    event.CategoryChannel,
		Severity:    event.SeverityInfo,
		Title:       "Channel Opened",
		Description: "New channel opened with 02abc",
		Data:        `{"capacity":500000}`,
		Timestamp:   time.Now().UTC(),
	}
	if err := d.Dispatch(ctx, evt); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("expected delivery to the single active endpoint, got %d", len(bodies))
	}
	if bodies[0]["title"] != "Channel Opened" {
		t.Fatalf("unexpected webhook body: %#v", bodies[0])
	}
	data, ok := bodies[0]["data"].(map[string]any)
	if !ok || data["capacity"].(float64) != 500000 {
		t.Fatalf("payload not embedded: %#v", bodies[0]["data"])
	}
}

func TestDispatcher_DiscordEmbedShape(t *testing.T) {
	var mu sync.Mutex
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(memory.New(), nil)
	ok, err := d.Test(context.Background(), notification.Endpoint{
		ID:        "ep-1",
		AccountID: "acct-1",
		Type:      notification.TypeDiscord,
		URL:       srv.URL,
	})
	if err != nil || !ok {
		t.Fatalf("test delivery failed: ok=%v err=%v", ok, err)
	}

	mu.Lock()
	defer mu.Unlock()
	embeds, ok := body["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one discord embed: %#v", body)
	}
	embed := embeds[0].(map[string]any)
	if embed["title"] != "Test Notification" {
		t.Fatalf("unexpected embed title: %#v", embed)
	}
}

func TestDispatcher_ReportsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := memory.New()
	ctx := context.Background()
	if _, err := store.CreateEndpoint(ctx, notification.Endpoint{
		AccountID: "acct-1", Name: "hook", Type: notification.TypeWebhook, URL: srv.URL, Active: true,
	}); err != nil {
		t.Fatalf("seed endpoint: %v", err)
	}

	d := NewDispatcher(store, nil)
	err := d.Dispatch(ctx, event.Event{ID: "evt-1", AccountID: "acct-1", Timestamp: time.Now()})
	if err == nil {
		t.Fatalf("expected delivery error for 502 response")
	}

	ok, err := d.Test(ctx, notification.Endpoint{ID: "ep-1", Type: notification.TypeWebhook, URL: srv.URL})
	if ok || err == nil {
		t.Fatalf("test should fail against a 502 endpoint: ok=%v err=%v", ok, err)
	}
}
