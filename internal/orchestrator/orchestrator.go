// Package orchestrator is the facade over the gateway fleet: lifecycle,
// routed order flow, fan-out queries, and the event/metrics bridges.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/alerting"
	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/internal/events"
	"github.com/gatelink/gogate/internal/gateway"
	"github.com/gatelink/gogate/internal/metrics"
	"github.com/gatelink/gogate/internal/ordertable"
	"github.com/gatelink/gogate/internal/routing"
	"github.com/gatelink/gogate/internal/supervisor"
	"github.com/gatelink/gogate/pkg/ratelimit"
	"github.com/gatelink/gogate/pkg/taskpool"
)

var log = logrus.WithField("component", "orchestrator")

const (
	defaultOrderTimeout = 5 * time.Second
	defaultQueryTimeout = 10 * time.Second
)

// Options tunes the orchestrator.
type Options struct {
	RoutingMode routing.Mode
	PoolWorkers int
	PoolBuffer  int
	Supervisor  supervisor.Options
}

// Orchestrator owns the gateway registry. Registration order is preserved
// for routing; the registry is immutable after Initialize.
type Orchestrator struct {
	opts Options

	mu       sync.RWMutex
	order    []string
	gateways map[string]*gateway.Managed
	inited   bool
	running  bool

	factory  *gateway.Factory
	limits   *ratelimit.Manager
	strategy routing.Strategy
	pool     *taskpool.Pool
	sup      *supervisor.Supervisor

	bus       *events.Bus
	collector *metrics.Collector
	alerts    *alerting.Engine
	orders    ordertable.Table
}

// New wires the orchestrator with its collaborators. Any of bus, collector,
// alerts may be nil for partial setups (tests); orders defaults to the
// in-memory table.
func New(bus *events.Bus, collector *metrics.Collector, alerts *alerting.Engine,
	orders ordertable.Table, opts Options) *Orchestrator {
	if orders == nil {
		orders = ordertable.NewMemoryTable()
	}
	return &Orchestrator{
		opts:      opts,
		gateways:  make(map[string]*gateway.Managed),
		factory:   gateway.NewFactory(),
		limits:    ratelimit.NewManager(),
		strategy:  routing.New(opts.RoutingMode),
		pool:      taskpool.New(opts.PoolBuffer, opts.PoolWorkers),
		sup:       supervisor.New(opts.Supervisor),
		bus:       bus,
		collector: collector,
		alerts:    alerts,
		orders:    orders,
	}
}

// Factory exposes the backend factory so callers can register custom
// backends before Initialize.
func (o *Orchestrator) Factory() *gateway.Factory { return o.factory }

// Supervisor exposes the health supervisor (ops surface: budget resets).
func (o *Orchestrator) Supervisor() *supervisor.Supervisor { return o.sup }

// Initialize builds every gateway handle and registers the alert rules.
// The descriptor set is fixed afterwards; calling twice is an error.
func (o *Orchestrator) Initialize(descriptors []domain.GatewayDescriptor, rules []domain.AlertRule) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inited {
		return errors.Wrap(domain.ErrConfiguration, "orchestrator already initialized")
	}
	if len(descriptors) == 0 {
		return errors.Wrap(domain.ErrConfiguration, "no gateways configured")
	}

	for _, desc := range descriptors {
		if desc.Name == "" {
			return errors.Wrap(domain.ErrConfiguration, "gateway with empty name")
		}
		if _, dup := o.gateways[desc.Name]; dup {
			return errors.Wrapf(domain.ErrConfiguration, "duplicate gateway name %q", desc.Name)
		}

		handle, err := o.factory.Build(desc, o.limits)
		if err != nil {
			return err
		}
		managed := gateway.NewManaged(desc, handle)
		handle.SetCallbacks(o.callbacksFor(managed))

		o.limits.RegisterGateway(desc.Name)
		o.sup.Register(managed)
		o.gateways[desc.Name] = managed
		o.order = append(o.order, desc.Name)
		log.Infof("gateway registered: name=%s backend=%s endpoint=%s primary=%v",
			desc.Name, desc.BackendType, desc.Endpoint, desc.IsPrimary)
	}

	if o.alerts != nil {
		for _, rule := range rules {
			if err := o.alerts.RegisterRule(rule); err != nil {
				return err
			}
		}
	}

	o.inited = true
	log.Infof("orchestrator initialized: gateways=%d strategy=%s", len(o.order), o.strategy.Name())
	return nil
}

// callbacksFor bridges adapter events onto the bus and the collector.
func (o *Orchestrator) callbacksFor(m *gateway.Managed) gateway.Callbacks {
	name := m.Name()
	return gateway.Callbacks{
		OnConnect: func(string) {
			if o.collector != nil {
				o.collector.RecordConnectionStatus(name, true)
			}
			o.publish(domain.EventGatewayConnected, GatewayEvent{Gateway: name})
		},
		OnDisconnect: func(_ string, reason string) {
			m.MarkDisconnected(reason)
			if o.collector != nil {
				o.collector.RecordConnectionStatus(name, false)
			}
			o.publish(domain.EventGatewayDisconnected, GatewayEvent{Gateway: name, Reason: reason})
			o.sup.Nudge()
		},
		OnOrder: func(_ string, orderID string, status string) {
			o.publish(domain.EventOrderSubmitted, OrderEvent{Gateway: name, OrderID: orderID, Status: status})
		},
		OnTrade: func(_ string, orderID string, payload interface{}) {
			o.publish(domain.EventTrade, TradeEvent{Gateway: name, OrderID: orderID, Detail: payload})
		},
		OnPosition: func(_ string, position domain.Position) {
			o.publish(domain.EventPositionUpdate, position)
		},
		OnAccount: func(_ string, account domain.AccountInfo) {
			o.publish(domain.EventAccountUpdate, account)
		},
		OnError: func(_ string, err error) {
			m.RecordError(err)
			if o.collector != nil {
				o.collector.RecordError(name, "gateway", err.Error())
			}
			o.publish(domain.EventGatewayError, GatewayEvent{Gateway: name, Reason: err.Error()})
		},
	}
}

// Start launches the bus and the task pool. Idempotent. Supervision begins
// once the first ConnectAll completes.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if !o.inited {
		o.mu.Unlock()
		return errors.Wrap(domain.ErrConfiguration, "orchestrator not initialized")
	}
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.mu.Unlock()

	if o.bus != nil {
		o.bus.Start()
	}
	o.pool.Start(ctx)
	log.Info("orchestrator started")
	return nil
}

// ConnectAll dials every gateway concurrently and returns the per-gateway
// outcome. A nil map value means the gateway connected. On completion the
// health supervisor starts, so its sweep never races the initial dial pass.
func (o *Orchestrator) ConnectAll(ctx context.Context) map[string]error {
	results := o.fanOutManaged(ctx, "connect", func(ctx context.Context, m *gateway.Managed) error {
		return m.Connect(ctx)
	})
	o.sup.Start(ctx)
	return results
}

// DisconnectAll stops the supervisor first, so no sweep reconnects behind
// the teardown, then tears every gateway down concurrently. A later
// ConnectAll resumes supervision.
func (o *Orchestrator) DisconnectAll(ctx context.Context) map[string]error {
	o.sup.Stop()
	return o.fanOutManaged(ctx, "disconnect", func(ctx context.Context, m *gateway.Managed) error {
		return m.Disconnect(ctx)
	})
}

// Shutdown is the ordered full stop: supervisor and gateways (DisconnectAll),
// then pool, bus, and the order table.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	results := o.DisconnectAll(ctx)
	for name, err := range results {
		if err != nil {
			log.Warnf("disconnect failed during shutdown: gateway=%s err=%v", name, err)
		}
	}

	if err := o.pool.Stop(ctx); err != nil {
		log.Warnf("task pool stop: %v", err)
	}
	if o.bus != nil {
		o.bus.Stop()
	}
	if err := o.orders.Close(); err != nil {
		log.Warnf("order table close: %v", err)
	}
	log.Info("orchestrator shut down")
}

// managedByName returns a registered gateway or nil.
func (o *Orchestrator) managedByName(name string) *gateway.Managed {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.gateways[name]
}

// managedList returns the registry in registration order.
func (o *Orchestrator) managedList() []*gateway.Managed {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*gateway.Managed, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.gateways[name])
	}
	return out
}

// view builds the routing input from the live registry.
func (o *Orchestrator) view() routing.View {
	list := o.managedList()
	v := routing.View{Candidates: make([]routing.Candidate, 0, len(list))}
	for _, m := range list {
		desc := m.Descriptor()
		v.Candidates = append(v.Candidates, routing.Candidate{
			Name:      desc.Name,
			Healthy:   m.Healthy(),
			Priority:  desc.Priority,
			Weight:    desc.Weight,
			IsPrimary: desc.IsPrimary,
		})
	}
	return v
}

// route resolves the target gateway: the explicit hint when given, the
// strategy's pick otherwise.
func (o *Orchestrator) route(hint string) (*gateway.Managed, error) {
	if hint != "" {
		m := o.managedByName(hint)
		if m == nil {
			return nil, errors.Wrapf(domain.ErrGatewayUnavailable, "unknown gateway %q", hint)
		}
		if !m.Healthy() {
			return nil, errors.Wrapf(domain.ErrGatewayUnavailable, "gateway %s not connected", hint)
		}
		return m, nil
	}

	name, ok := o.strategy.Select(o.view())
	if !ok {
		return nil, errors.Wrap(domain.ErrGatewayUnavailable, "no healthy gateway")
	}
	return o.managedByName(name), nil
}

// PrimaryGateway reports the currently elected primary, if any.
func (o *Orchestrator) PrimaryGateway() (string, bool) {
	name := routing.ElectPrimary(o.view())
	return name, name != ""
}

// Status returns a snapshot of every gateway's status, keyed by name.
func (o *Orchestrator) Status() map[string]domain.GatewayStatus {
	list := o.managedList()
	out := make(map[string]domain.GatewayStatus, len(list))
	for _, m := range list {
		out[m.Name()] = m.Status()
	}
	return out
}

// GatewayNames returns the registry in registration order.
func (o *Orchestrator) GatewayNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

func (o *Orchestrator) publish(eventType domain.EventType, payload interface{}) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(eventType, payload); err != nil {
		log.Debugf("publish %s: %v", eventType, err)
	}
}

// wrapTimeout maps a context deadline error onto the timeout taxonomy.
func wrapTimeout(err error, format string, args ...interface{}) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(domain.ErrOperationTimeout, format+": %v", append(args, err)...)
	}
	return errors.Wrapf(err, format, args...)
}

// fanOutManaged runs fn for every gateway on the task pool and collects the
// per-gateway results. It never returns early: slow gateways are bounded by
// ctx, not by each other.
func (o *Orchestrator) fanOutManaged(ctx context.Context, opName string,
	fn func(ctx context.Context, m *gateway.Managed) error) map[string]error {

	list := o.managedList()
	results := make(map[string]error, len(list))
	var resMu sync.Mutex
	var wg sync.WaitGroup

	for _, m := range list {
		m := m
		wg.Add(1)
		submitted := o.pool.Submit(taskpool.Task{
			Name: opName + ":" + m.Name(),
			Do: func(taskCtx context.Context) {
				defer wg.Done()
				err := fn(ctx, m)
				resMu.Lock()
				results[m.Name()] = err
				resMu.Unlock()
			},
		})
		if !submitted {
			wg.Done()
			resMu.Lock()
			results[m.Name()] = errors.Errorf("%s %s: task pool saturated", opName, m.Name())
			resMu.Unlock()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return results
	case <-ctx.Done():
		// Late tasks may still write into the shared map; hand the caller
		// a private copy instead.
		out := make(map[string]error, len(list))
		resMu.Lock()
		for _, m := range list {
			if err, ok := results[m.Name()]; ok {
				out[m.Name()] = err
			} else {
				out[m.Name()] = wrapTimeout(ctx.Err(), "%s %s", opName, m.Name())
			}
		}
		resMu.Unlock()
		return out
	}
}

// GatewayEvent is the payload for connect/disconnect/error events.
type GatewayEvent struct {
	Gateway string `json:"gateway"`
	Reason  string `json:"reason,omitempty"`
}

// OrderEvent is the payload for order lifecycle events.
type OrderEvent struct {
	Gateway       string `json:"gateway"`
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	Status        string `json:"status,omitempty"`
}

// TradeEvent is the payload for trade push events.
type TradeEvent struct {
	Gateway string      `json:"gateway"`
	OrderID string      `json:"orderId"`
	Detail  interface{} `json:"detail,omitempty"`
}
