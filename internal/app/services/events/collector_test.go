package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/lightning"
)

// fakeClient serves a scripted list of raw events over a fresh feed channel
// each time a feed is opened.
type fakeClient struct {
	nodeID  string
	events  []lightning.RawEvent
	openErr error

	mu    sync.Mutex
	opens int
}

func (f *fakeClient) NodeID() string { return f.nodeID }

func (f *fakeClient) OpenEventFeed(ctx context.Context, _ event.Category) (<-chan lightning.RawEvent, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()

	feed := make(chan lightning.RawEvent, len(f.events))
	for _, e := range f.events {
		feed <- e
	}
	close(feed)
	return feed, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func collectFromQueue(t *testing.T, queue <-chan lightning.RawEvent, want int) []lightning.RawEvent {
	t.Helper()
	var got []lightning.RawEvent
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case raw := <-queue:
			got = append(got, raw)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(got), want)
		}
	}
	return got
}

func TestCollector_ForwardsMatchingEvents(t *testing.T) {
	queue := make(chan lightning.RawEvent, 10)
	c := NewCollector(NewRegistry(), queue, nil)

	client := &fakeClient{nodeID: "lnd-1", events: []lightning.RawEvent{
		lightning.LndChannelOpened{RemotePubkey: "02abc"},
		lightning.LndInvoiceSettled{},
		lightning.LndPaymentSucceeded{ValueMsat: 1000},
	}}

	if err := c.Start(context.Background(), client, AllEvents()); err != nil {
		t.Fatalf("start collector: %v", err)
	}

	got := collectFromQueue(t, queue, 3)
	if got[0].Category() != event.CategoryChannel ||
		got[1].Category() != event.CategoryInvoice ||
		got[2].Category() != event.CategoryPayment {
		t.Fatalf("events out of source order: %#v", got)
	}
	c.Wait()
}

func TestCollector_FilterExcludesOtherCategories(t *testing.T) {
	queue := make(chan lightning.RawEvent, 10)
	c := NewCollector(NewRegistry(), queue, nil)

	client := &fakeClient{nodeID: "lnd-1", events: []lightning.RawEvent{
		lightning.LndChannelOpened{},
		lightning.LndInvoiceSettled{},
		lightning.LndChannelClosed{},
		lightning.LndPaymentFailed{},
	}}

	if err := c.Start(context.Background(), client, ChannelsOnly()); err != nil {
		t.Fatalf("start collector: %v", err)
	}
	c.Wait()

	close(queue)
	var got []lightning.RawEvent
	for raw := range queue {
		got = append(got, raw)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 channel events, got %d", len(got))
	}
	for _, raw := range got {
		if raw.Category() != event.CategoryChannel {
			t.Fatalf("filtered queue contains %s event", raw.Category())
		}
	}
}

func TestCollector_DoubleStartOpensOneFeed(t *testing.T) {
	queue := make(chan lightning.RawEvent, 10)
	registry := NewRegistry()
	c := NewCollector(registry, queue, nil)

	// The blocking feed keeps the first registration alive while the second
	// Start runs.
	client := &blockingClient{nodeID: "lnd-1", feed: make(chan lightning.RawEvent)}

	if err := c.Start(context.Background(), client, AllEvents()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := c.Start(context.Background(), client, AllEvents()); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	if n := client.openCount(); n != 1 {
		t.Fatalf("expected exactly one feed open, got %d", n)
	}

	c.Stop("lnd-1")
	c.Wait()
}

func TestCollector_OpenFailureDeregisters(t *testing.T) {
	queue := make(chan lightning.RawEvent, 1)
	registry := NewRegistry()
	c := NewCollector(registry, queue, nil)

	client := &fakeClient{nodeID: "lnd-1", openErr: errors.New("connection refused")}
	if err := c.Start(context.Background(), client, AllEvents()); err == nil {
		t.Fatalf("expected feed open error")
	}
	if registry.Active("lnd-1") {
		t.Fatalf("failed start must deregister the node")
	}

	// The node can be retried immediately.
	client.openErr = nil
	if err := c.Start(context.Background(), client, AllEvents()); err != nil {
		t.Fatalf("retry after failed open: %v", err)
	}
	c.Wait()
}

func TestCollector_StopAllowsRestart(t *testing.T) {
	queue := make(chan lightning.RawEvent, 1)
	registry := NewRegistry()
	c := NewCollector(registry, queue, nil)

	blocked := make(chan lightning.RawEvent)
	client := &blockingClient{nodeID: "lnd-1", feed: blocked}

	if err := c.Start(context.Background(), client, AllEvents()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !registry.Active("lnd-1") {
		t.Fatalf("node should be active")
	}

	c.Stop("lnd-1")
	c.Wait()
	if registry.Active("lnd-1") {
		t.Fatalf("node should be inactive after stop")
	}

	if err := c.Start(context.Background(), client, AllEvents()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	c.Stop("lnd-1")
	c.Wait()
}

// blockingClient returns a feed that never produces events, so the forwarding
// goroutine stays alive until cancelled.
type blockingClient struct {
	nodeID string
	feed   chan lightning.RawEvent

	mu    sync.Mutex
	opens int
}

func (b *blockingClient) NodeID() string { return b.nodeID }

func (b *blockingClient) OpenEventFeed(context.Context, event.Category) (<-chan lightning.RawEvent, error) {
	b.mu.Lock()
	b.opens++
	b.mu.Unlock()
	return b.feed, nil
}

func (b *blockingClient) Close() error { return nil }

func (b *blockingClient) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// slowOpenClient signals when a feed open begins, then blocks until the feed
// context is cancelled.
type slowOpenClient struct {
	nodeID  string
	opening chan struct{}
}

func (s *slowOpenClient) NodeID() string { return s.nodeID }

func (s *slowOpenClient) OpenEventFeed(ctx context.Context, _ event.Category) (<-chan lightning.RawEvent, error) {
	close(s.opening)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowOpenClient) Close() error { return nil }

func TestCollector_StopDuringStartCancelsOpen(t *testing.T) {
	queue := make(chan lightning.RawEvent, 1)
	registry := NewRegistry()
	c := NewCollector(registry, queue, nil)

	client := &slowOpenClient{nodeID: "lnd-1", opening: make(chan struct{})}
	startErr := make(chan error, 1)
	go func() {
		startErr <- c.Start(context.Background(), client, AllEvents())
	}()

	select {
	case <-client.opening:
	case <-time.After(2 * time.Second):
		t.Fatalf("feed open never started")
	}

	// Stop while the open is still in flight must cancel it rather than
	// leaving a feed running on a deregistered node.
	c.Stop("lnd-1")

	select {
	case err := <-startErr:
		if err == nil {
			t.Fatalf("expected cancelled open to surface an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start never returned after stop")
	}

	c.Wait()
	if registry.Active("lnd-1") {
		t.Fatalf("node should be inactive after stop during start")
	}

	// The node is free for a fresh feed.
	fresh := &fakeClient{nodeID: "lnd-1", events: []lightning.RawEvent{
		lightning.LndChannelOpened{RemotePubkey: "02abc"},
	}}
	if err := c.Start(context.Background(), fresh, AllEvents()); err != nil {
		t.Fatalf("restart after cancelled open: %v", err)
	}
	collectFromQueue(t, queue, 1)
	c.Wait()
}
