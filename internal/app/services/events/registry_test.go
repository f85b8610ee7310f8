package events

import (
	"sync"
	"testing"
)

func TestRegistry_RegisterDeregister(t *testing.T) {
	r := NewRegistry()

	if !r.Register("lnd-1") {
		t.Fatalf("first register should win")
	}
	if r.Register("lnd-1") {
		t.Fatalf("second register for same node should lose")
	}
	if !r.Active("lnd-1") {
		t.Fatalf("node should be active after register")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 active node, got %d", r.Count())
	}

	r.Deregister("lnd-1")
	if r.Active("lnd-1") {
		t.Fatalf("node should be inactive after deregister")
	}

	// Deregistering again is a no-op.
	r.Deregister("lnd-1")

	if !r.Register("lnd-1") {
		t.Fatalf("register should succeed after deregister")
	}
}

func TestRegistry_ConcurrentRegisterSingleWinner(t *testing.T) {
	r := NewRegistry()

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.Register("lnd-1")
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 active node, got %d", r.Count())
	}
}
