package events

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
)

var busLog = logrus.WithField("component", "event_bus")

// Handler consumes one event. Failures are isolated per handler: a panic or
// returned error never stops delivery to the remaining handlers.
type Handler func(event domain.Event)

type namedHandler struct {
	id string
	fn Handler
}

// Bus is an in-process publish/subscribe dispatcher. FIFO per bus, bounded
// queue, dedicated dispatch goroutine. Publish never blocks while Running.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]namedHandler
	running  bool

	queue   chan domain.Event
	queueSz int

	stopC chan struct{}
	doneC chan struct{}

	drainTimeout time.Duration
}

// NewBus creates a stopped bus with the given queue size (<=0 picks a
// default).
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Bus{
		handlers:     make(map[domain.EventType][]namedHandler),
		queueSz:      queueSize,
		drainTimeout: 3 * time.Second,
	}
}

// SetDrainTimeout bounds how long Stop waits for in-flight dispatch.
func (b *Bus) SetDrainTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > 0 {
		b.drainTimeout = d
	}
}

// Start transitions Stopped -> Running. Idempotent.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return
	}

	b.queue = make(chan domain.Event, b.queueSz)
	b.stopC = make(chan struct{})
	b.doneC = make(chan struct{})
	b.running = true

	go b.dispatchLoop(b.queue, b.stopC, b.doneC)
	busLog.Infof("event bus started (queue=%d)", b.queueSz)
}

// Stop transitions Running -> Stopped, draining queued events for at most
// the drain timeout. Idempotent.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	queue := b.queue
	stopC := b.stopC
	doneC := b.doneC
	timeout := b.drainTimeout
	b.mu.Unlock()

	// Closing the queue lets the dispatch loop finish what is buffered.
	close(queue)

	select {
	case <-doneC:
		busLog.Info("event bus stopped")
	case <-time.After(timeout):
		close(stopC)
		<-doneC
		busLog.Warnf("event bus stop: drain timeout after %s, forced termination", timeout)
	}
}

// Running reports the bus state.
func (b *Bus) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Publish enqueues an event. Returns ErrBusStopped while stopped; never
// blocks while running (a full queue drops the event and reports it).
func (b *Bus) Publish(eventType domain.EventType, payload interface{}) error {
	b.mu.RLock()
	running := b.running
	queue := b.queue
	b.mu.RUnlock()

	if !running {
		return errors.Wrapf(domain.ErrBusStopped, "publish %s", eventType)
	}

	event := domain.NewEvent(eventType, payload)
	select {
	case queue <- event:
		return nil
	default:
		busLog.Warnf("event queue full, dropping event: type=%s", eventType)
		return errors.Errorf("event queue full: %s", eventType)
	}
}

// Subscribe registers a handler under an id. Idempotent per (type, id):
// re-subscribing replaces the handler function.
func (b *Bus) Subscribe(eventType domain.EventType, id string, fn Handler) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventType]
	for i := range list {
		if list[i].id == id {
			list[i].fn = fn
			return
		}
	}
	b.handlers[eventType] = append(list, namedHandler{id: id, fn: fn})
}

// Unsubscribe removes a handler. Idempotent: unknown ids are a no-op.
func (b *Bus) Unsubscribe(eventType domain.EventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventType]
	for i := range list {
		if list[i].id == id {
			b.handlers[eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// SubscriberCount reports how many handlers are registered for a type.
func (b *Bus) SubscriberCount(eventType domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

func (b *Bus) dispatchLoop(queue chan domain.Event, stopC, doneC chan struct{}) {
	defer close(doneC)

	for {
		select {
		case <-stopC:
			return
		case event, ok := <-queue:
			if !ok {
				return
			}
			b.dispatch(event)
		}
	}
}

// dispatch snapshots the handler list for the event type and invokes each
// handler, recovering panics so delivery continues.
func (b *Bus) dispatch(event domain.Event) {
	b.mu.RLock()
	snapshot := make([]namedHandler, len(b.handlers[event.Type]))
	copy(snapshot, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, h := range snapshot {
		b.invoke(h, event)
	}
}

func (b *Bus) invoke(h namedHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			busLog.Errorf("handler failed: type=%s id=%s panic=%v (%v)",
				event.Type, h.id, r, domain.ErrHandler)
		}
	}()
	h.fn(event)
}
