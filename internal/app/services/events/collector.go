package events

import (
	"context"
	"sync"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/lightning"
	"github.com/lnwatch/dashboard/internal/app/metrics"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// Collector owns the lifecycle of raw-event feeds: it opens one feed per
// node, applies the configured filter and forwards matches onto the bounded
// output queue. The forwarding goroutine exclusively owns its feed, so events
// from one node preserve source order end to end.
type Collector struct {
	registry *Registry
	out      chan<- lightning.RawEvent
	log      *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewCollector creates a collector forwarding matched events to out.
func NewCollector(registry *Registry, out chan<- lightning.RawEvent, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.NewDefault("event-collector")
	}
	return &Collector{
		registry: registry,
		out:      out,
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start opens the node's unified feed and begins forwarding filtered events.
// A node that already has a live feed is skipped silently; this is the
// intended idempotent path, not an error. Feed open failures deregister the
// node and surface to the caller, which must retry explicitly.
func (c *Collector) Start(ctx context.Context, source lightning.Client, filter Filter) error {
	nodeID := source.NodeID()
	log := c.log.WithField("node_id", nodeID)

	if !c.registry.Register(nodeID) {
		log.Info("event feed already active; skipping")
		return nil
	}

	// The cancel must be visible to Stop before any further work; a Stop
	// landing between registration and this store would otherwise find
	// nothing to cancel and leave the feed running on a deregistered node.
	feedCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[nodeID] = cancel
	c.mu.Unlock()

	if !c.registry.Active(nodeID) {
		c.finish(nodeID)
		log.Info("event feed stopped during startup")
		return nil
	}

	feed, err := source.OpenEventFeed(feedCtx, event.CategoryAll)
	if err != nil {
		c.finish(nodeID)
		return err
	}

	c.wg.Add(1)
	go c.forward(feedCtx, nodeID, feed, filter)

	log.Info("event feed started")
	return nil
}

// Stop deregisters the node and cancels its forwarding goroutine. Both steps
// are required: registry removal alone would leave a stale task delivering
// events while allowing an immediate resubscribe.
func (c *Collector) Stop(nodeID string) {
	c.registry.Deregister(nodeID)

	c.mu.Lock()
	cancel := c.cancels[nodeID]
	delete(c.cancels, nodeID)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every forwarding goroutine has exited.
func (c *Collector) Wait() {
	c.wg.Wait()
}

func (c *Collector) forward(ctx context.Context, nodeID string, feed <-chan lightning.RawEvent, filter Filter) {
	defer c.wg.Done()
	defer c.finish(nodeID)

	log := c.log.WithField("node_id", nodeID)
	for {
		select {
		case <-ctx.Done():
			log.Info("event feed stopped")
			return
		case raw, ok := <-feed:
			if !ok {
				log.Info("event feed ended")
				return
			}
			if !filter.Matches(raw) {
				continue
			}
			metrics.RecordEventCollected(string(raw.Category()))

			// The queue is bounded; when full, this send suspends until the
			// consumer frees space or the feed is cancelled.
			select {
			case c.out <- raw:
			case <-ctx.Done():
				log.Warn("consumer gone; stopping event feed")
				return
			}
		}
	}
}

func (c *Collector) finish(nodeID string) {
	c.registry.Deregister(nodeID)
	c.mu.Lock()
	if cancel, ok := c.cancels[nodeID]; ok {
		delete(c.cancels, nodeID)
		cancel()
	}
	c.mu.Unlock()
}
