// Package subscriptions manages per-node, per-category event subscription
// lifecycle, including the node credential cache.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
	"github.com/lnwatch/dashboard/internal/app/lightning"
	"github.com/lnwatch/dashboard/internal/app/metrics"
	"github.com/lnwatch/dashboard/internal/app/services/events"
	"github.com/lnwatch/dashboard/internal/app/system"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// ErrSubscriptionNotFound is returned by Unsubscribe when no active
// subscription exists for the (node, category) pair.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// State tracks where a subscription is in its lifecycle.
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateError    State = "error"
	StateStopped  State = "stopped"
)

// Subscription binds a (node, category) pair to its running feed task.
type Subscription struct {
	NodeID   string
	Category event.Category
	State    State

	cancel context.CancelFunc
	done   chan struct{}
}

// initCategories are started for every node at initialisation time.
var initCategories = []event.Category{
	event.CategoryChannel,
	event.CategoryInvoice,
	event.CategoryPayment,
}

// Supervisor owns the subscription table and the credential cache. Each
// subscription runs one feed task that exclusively owns its feed handle; the
// task forwards raw events over a bounded queue into the event service.
type Supervisor struct {
	events    *events.Service
	connector lightning.Connector
	log       *logger.Logger
	queueSize int

	mu      sync.RWMutex
	subs    map[string]*Subscription
	creds   map[string]node.Credentials
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool
}

var _ system.Service = (*Supervisor)(nil)

// New constructs a supervisor dispatching collected events through svc.
func New(svc *events.Service, connector lightning.Connector, log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NewDefault("subscriptions")
	}
	return &Supervisor{
		events:    svc,
		connector: connector,
		log:       log,
		queueSize: 100,
		subs:      make(map[string]*Subscription),
		creds:     make(map[string]node.Credentials),
	}
}

func (s *Supervisor) Name() string { return "subscription-supervisor" }

// Start prepares the root context all subscription tasks derive from.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.running = true
	return nil
}

// Stop cancels every subscription task and clears the credential cache.
func (s *Supervisor) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*Subscription)
	s.creds = make(map[string]node.Credentials)
	s.mu.Unlock()

	cancel()
	for _, sub := range subs {
		<-sub.done
	}
	s.log.Info("subscription supervisor stopped")
	return nil
}

// StoreCredentials caches connection parameters for a node so subscriptions
// can be (re)started without the original connect request.
func (s *Supervisor) StoreCredentials(nodeID string, creds node.Credentials) {
	s.mu.Lock()
	s.creds[nodeID] = creds
	s.mu.Unlock()
}

// Credentials returns the cached credentials for a node.
func (s *Supervisor) Credentials(nodeID string) (node.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.creds[nodeID]
	return creds, ok
}

// InitializeForNode caches the node's credentials and starts channel, invoice
// and payment subscriptions. Each category starts in its own goroutine so a
// broken feed for one category cannot block or starve the others.
func (s *Supervisor) InitializeForNode(info node.Info, creds node.Credentials, identity events.Identity) {
	nodeID := info.Pubkey
	s.StoreCredentials(nodeID, creds)

	for _, category := range initCategories {
		category := category
		go func() {
			if err := s.Subscribe(nodeID, category, identity); err != nil {
				s.log.WithError(err).
					WithField("node_id", nodeID).
					WithField("category", string(category)).
					Error("failed to start subscription")
			}
		}()
	}
	s.log.WithField("node_id", nodeID).Info("background event subscriptions initialising")
}

// Subscribe starts a feed task for (node, category). When a subscription for
// the pair is already live it returns success without creating a new task.
// Feed open failures surface to the caller and leave the pair in the error
// state; there is no internal retry, but a later Subscribe replaces the
// failed slot.
func (s *Supervisor) Subscribe(nodeID string, category event.Category, identity events.Identity) error {
	key := subscriptionKey(nodeID, category)
	log := s.log.WithField("node_id", nodeID).WithField("category", string(category))

	s.mu.RLock()
	runCtx := s.runCtx
	running := s.running
	s.mu.RUnlock()

	if !running {
		return errors.New("supervisor not started")
	}

	creds, ok := s.Credentials(nodeID)
	if !ok {
		return fmt.Errorf("no credentials cached for node %s", nodeID)
	}

	subCtx, cancel := context.WithCancel(runCtx)
	sub := &Subscription{
		NodeID:   nodeID,
		Category: category,
		State:    StateStarting,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// Claiming the table slot before connecting makes concurrent Subscribe
	// calls for the same pair collapse onto one starting task.
	s.mu.Lock()
	if cur, exists := s.subs[key]; exists && (cur.State == StateActive || cur.State == StateStarting) {
		s.mu.Unlock()
		cancel()
		log.Info("already subscribed; skipping")
		return nil
	}
	s.subs[key] = sub
	s.mu.Unlock()

	// A dedicated client per subscription keeps one broken transport from
	// affecting sibling categories.
	client, err := s.connector.Connect(subCtx, creds)
	if err != nil {
		s.failSubscription(key, sub)
		return fmt.Errorf("connect node %s: %w", nodeID, err)
	}

	feed, err := client.OpenEventFeed(subCtx, category)
	if err != nil {
		s.failSubscription(key, sub)
		client.Close()
		return err
	}

	s.mu.Lock()
	if s.subs[key] != sub {
		// Unsubscribed while starting; discard the feed we just opened.
		s.mu.Unlock()
		cancel()
		client.Close()
		close(sub.done)
		return nil
	}
	sub.State = StateActive
	s.mu.Unlock()
	metrics.SubscriptionStarted()

	queue := make(chan lightning.RawEvent, s.queueSize)
	go func() {
		defer close(queue)
		defer client.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case raw, ok := <-feed:
				if !ok {
					return
				}
				select {
				case queue <- raw:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()
	go func() {
		defer close(sub.done)
		defer metrics.SubscriptionStopped()
		s.events.Consume(subCtx, identity, queue)

		s.mu.Lock()
		if s.subs[key] == sub {
			sub.State = StateStopped
		}
		s.mu.Unlock()
		log.Info("subscription ended")
	}()

	log.Info("subscription started")
	return nil
}

// failSubscription records the open failure on the claimed table slot and
// releases every waiter on it.
func (s *Supervisor) failSubscription(key string, sub *Subscription) {
	s.mu.Lock()
	if s.subs[key] == sub {
		sub.State = StateError
	}
	s.mu.Unlock()
	sub.cancel()
	close(sub.done)
}

// Unsubscribe cancels the feed task for (node, category). It returns
// ErrSubscriptionNotFound when no active subscription exists, leaving every
// other subscription untouched.
func (s *Supervisor) Unsubscribe(nodeID string, category event.Category) error {
	key := subscriptionKey(nodeID, category)

	s.mu.Lock()
	sub, ok := s.subs[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s events for node %s", ErrSubscriptionNotFound, category, nodeID)
	}
	delete(s.subs, key)
	sub.State = StateStopped
	s.mu.Unlock()

	sub.cancel()
	s.log.WithField("node_id", nodeID).
		WithField("category", string(category)).
		Info("unsubscribed")
	return nil
}

// Cleanup best-effort unsubscribes every known category for the node, then
// drops its cached credentials. Partial failures are logged, never returned.
func (s *Supervisor) Cleanup(nodeID string) {
	for _, category := range initCategories {
		if err := s.Unsubscribe(nodeID, category); err != nil {
			s.log.WithError(err).
				WithField("node_id", nodeID).
				Warnf("cleanup: failed to unsubscribe from %s events", category)
		}
	}

	s.mu.Lock()
	delete(s.creds, nodeID)
	s.mu.Unlock()

	s.log.WithField("node_id", nodeID).Info("cleaned up node subscriptions")
}

// ActiveSubscriptions lists the categories with a live subscription for the
// node.
func (s *Supervisor) ActiveSubscriptions(nodeID string) []event.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var categories []event.Category
	for _, sub := range s.subs {
		if sub.NodeID == nodeID && sub.State == StateActive {
			categories = append(categories, sub.Category)
		}
	}
	return categories
}

func subscriptionKey(nodeID string, category event.Category) string {
	return nodeID + "_" + string(category)
}
