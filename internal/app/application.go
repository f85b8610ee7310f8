// Package app wires the dashboard services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lnwatch/dashboard/internal/app/auth"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
	"github.com/lnwatch/dashboard/internal/app/lightning"
	"github.com/lnwatch/dashboard/internal/app/services/events"
	"github.com/lnwatch/dashboard/internal/app/services/notifications"
	"github.com/lnwatch/dashboard/internal/app/services/rates"
	"github.com/lnwatch/dashboard/internal/app/services/subscriptions"
	"github.com/lnwatch/dashboard/internal/app/storage"
	"github.com/lnwatch/dashboard/internal/app/storage/memory"
	"github.com/lnwatch/dashboard/internal/app/system"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Events        storage.EventStore
	Notifications storage.NotificationStore
}

// Options tunes pipeline behaviour. The zero value selects sane defaults.
type Options struct {
	QueueSize       int
	DispatchTimeout time.Duration
	Connector       lightning.Connector
	Fetcher         rates.Fetcher

	TokenSecret string
	TokenTTL    time.Duration
}

// Application ties the event pipeline, notification delivery and supporting
// services together and manages their lifecycle.
type Application struct {
	manager   *system.Manager
	log       *logger.Logger
	connector lightning.Connector
	queueSize int

	Events        *events.Service
	Notifications *notifications.Service
	Subscriptions *subscriptions.Supervisor
	Rates         *rates.Service
	Auth          *auth.Issuer

	registry *events.Registry

	mu    sync.Mutex
	feeds map[string]*unifiedFeed
}

type unifiedFeed struct {
	collector *events.Collector
	cancel    context.CancelFunc
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Events == nil {
		stores.Events = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Connector == nil {
		opts.Connector = lightning.NewConnector(log)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = rates.NewHTTPFetcher(log)
	}

	manager := system.NewManager()

	dispatcher := notifications.NewDispatcher(stores.Notifications, log)
	eventService := events.New(stores.Events, dispatcher, log).
		WithDispatchTimeout(opts.DispatchTimeout)
	notifService := notifications.NewService(stores.Notifications, dispatcher, log)
	ratesService := rates.NewService(opts.Fetcher, log)
	supervisor := subscriptions.New(eventService, opts.Connector, log)

	for _, svc := range []system.Service{
		supervisor,
		rates.NewRefresher(ratesService, log),
	} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		connector:     opts.Connector,
		queueSize:     opts.QueueSize,
		Events:        eventService,
		Notifications: notifService,
		Subscriptions: supervisor,
		Rates:         ratesService,
		Auth:          auth.NewIssuer(opts.TokenSecret, opts.TokenTTL),
		registry:      events.NewRegistry(),
		feeds:         make(map[string]*unifiedFeed),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and tears down open unified feeds.
func (a *Application) Stop(ctx context.Context) error {
	a.mu.Lock()
	feeds := a.feeds
	a.feeds = make(map[string]*unifiedFeed)
	a.mu.Unlock()

	for _, feed := range feeds {
		if feed.cancel != nil {
			feed.cancel()
		}
		if feed.collector != nil {
			feed.collector.Wait()
		}
	}

	return a.manager.Stop(ctx)
}

// InitializeNode validates the access token and starts the node's background
// subscriptions under the account and user the token carries.
func (a *Application) InitializeNode(token string, info node.Info, creds node.Credentials) (events.Identity, error) {
	claims, err := a.Auth.Parse(token)
	if err != nil {
		return events.Identity{}, err
	}
	identity := events.IdentityFromClaims(claims, info)
	a.Subscriptions.InitializeForNode(info, creds, identity)
	return identity, nil
}

// StartUnifiedFeed opens a single filtered feed for the node and pipes every
// matching raw event through the event service under the given identity. The
// shared registry guarantees at most one unified feed per node, so a second
// call while the feed is live is a no-op. A feed that ends, for any reason,
// frees its slot so the node can be started again.
func (a *Application) StartUnifiedFeed(ctx context.Context, creds node.Credentials, identity events.Identity, filter events.Filter) error {
	feed := &unifiedFeed{}
	a.mu.Lock()
	if _, exists := a.feeds[creds.NodeID]; exists {
		a.mu.Unlock()
		a.log.WithField("node_id", creds.NodeID).Info("unified feed already open")
		return nil
	}
	a.feeds[creds.NodeID] = feed
	a.mu.Unlock()

	client, err := a.connector.Connect(ctx, creds)
	if err != nil {
		a.reapFeed(creds.NodeID, feed)
		return fmt.Errorf("connect to node %s: %w", creds.NodeID, err)
	}

	feedCtx, cancel := context.WithCancel(ctx)
	queue := make(chan lightning.RawEvent, a.queueSize)
	collector := events.NewCollector(a.registry, queue, a.log)

	if err := collector.Start(feedCtx, client, filter); err != nil {
		cancel()
		client.Close()
		a.reapFeed(creds.NodeID, feed)
		return err
	}

	a.mu.Lock()
	feed.collector = collector
	feed.cancel = cancel
	a.mu.Unlock()

	// The collector is the queue's only producer, so once its forwarder
	// exits the queue can be closed and the feed slot reclaimed. Without
	// this a naturally ended feed would block the node from ever being
	// resubscribed.
	go func() {
		collector.Wait()
		close(queue)
		a.reapFeed(creds.NodeID, feed)
	}()
	go func() {
		defer client.Close()
		defer cancel()
		a.Events.Consume(feedCtx, identity, queue)
	}()
	return nil
}

// reapFeed removes the node's feed slot, but only while it still belongs to
// the given feed instance.
func (a *Application) reapFeed(nodeID string, feed *unifiedFeed) {
	a.mu.Lock()
	if a.feeds[nodeID] == feed {
		delete(a.feeds, nodeID)
	}
	a.mu.Unlock()
}

// StopUnifiedFeed tears down the node's unified feed if one is open.
func (a *Application) StopUnifiedFeed(nodeID string) {
	a.mu.Lock()
	feed, ok := a.feeds[nodeID]
	delete(a.feeds, nodeID)
	a.mu.Unlock()

	if !ok {
		return
	}
	if feed.collector != nil {
		feed.collector.Stop(nodeID)
	}
	if feed.cancel != nil {
		feed.cancel()
	}
	if feed.collector != nil {
		feed.collector.Wait()
	}
}
