package events

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
)

func TestPublishWhileStopped(t *testing.T) {
	b := NewBus(8)
	if err := b.Publish(domain.EventTrade, nil); !errors.Is(err, domain.ErrBusStopped) {
		t.Fatalf("err = %v, want ErrBusStopped", err)
	}

	b.Start()
	defer b.Stop()
	if err := b.Publish(domain.EventTrade, nil); err != nil {
		t.Fatalf("publish while running: %v", err)
	}
}

func TestDeliveryOrderPerBus(t *testing.T) {
	b := NewBus(64)
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	b.Subscribe(domain.EventTrade, "t", func(e domain.Event) {
		mu.Lock()
		got = append(got, e.Payload.(int))
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		if err := b.Publish(domain.EventTrade, i); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want FIFO", got)
		}
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	b := NewBus(8)
	b.Start()
	defer b.Stop()

	got := make(chan struct{}, 2)
	b.Subscribe(domain.EventTrade, "boom", func(domain.Event) { panic("boom") })
	b.Subscribe(domain.EventTrade, "ok", func(domain.Event) { got <- struct{}{} })

	if err := b.Publish(domain.EventTrade, nil); err != nil {
		t.Fatal(err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler starved by panicking first")
	}
}

func TestSubscribeIdempotentPerID(t *testing.T) {
	b := NewBus(8)
	count := 0
	var mu sync.Mutex
	fn := func(domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	b.Subscribe(domain.EventTrade, "x", fn)
	b.Subscribe(domain.EventTrade, "x", fn) // replace, not duplicate
	if n := b.SubscriberCount(domain.EventTrade); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}

	b.Unsubscribe(domain.EventTrade, "x")
	b.Unsubscribe(domain.EventTrade, "x") // no-op
	if n := b.SubscriberCount(domain.EventTrade); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	b := NewBus(64)
	b.Start()

	var mu sync.Mutex
	delivered := 0
	b.Subscribe(domain.EventTrade, "t", func(domain.Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		if err := b.Publish(domain.EventTrade, i); err != nil {
			t.Fatal(err)
		}
	}
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	if delivered != 20 {
		t.Fatalf("delivered = %d, want 20 (drained on stop)", delivered)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	b := NewBus(8)
	b.Start()
	b.Start()
	b.Stop()
	b.Stop()
	if b.Running() {
		t.Fatal("bus running after stop")
	}
}
