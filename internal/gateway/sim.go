package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
)

var simLog = logrus.WithField("component", "gateway_sim")

// SimHandle is an in-process backend used for paper trading and tests. It
// honors the full Handle contract and supports latency and failure
// injection.
type SimHandle struct {
	desc domain.GatewayDescriptor

	connected atomic.Bool
	authed    atomic.Bool

	cbMu sync.RWMutex
	cb   Callbacks

	mu        sync.Mutex
	orders    map[string]domain.OrderSpec
	positions map[string]domain.Position
	subs      map[string]struct{}

	latency      atomic.Int64 // nanoseconds applied to every operation
	failConnect  atomic.Bool
	failSubmit   atomic.Bool
	failPing     atomic.Bool
	connectCalls atomic.Int64
	submitCalls  atomic.Int64
}

func NewSimHandle(desc domain.GatewayDescriptor) *SimHandle {
	return &SimHandle{
		desc:      desc,
		orders:    make(map[string]domain.OrderSpec),
		positions: make(map[string]domain.Position),
		subs:      make(map[string]struct{}),
	}
}

// Failure/latency injection. Safe to flip at any time.

func (h *SimHandle) SetLatency(d time.Duration) { h.latency.Store(int64(d)) }
func (h *SimHandle) SetFailConnect(fail bool)   { h.failConnect.Store(fail) }
func (h *SimHandle) SetFailSubmit(fail bool)    { h.failSubmit.Store(fail) }
func (h *SimHandle) SetFailPing(fail bool)      { h.failPing.Store(fail) }

// ConnectCalls reports how many Connect attempts were made (tests).
func (h *SimHandle) ConnectCalls() int64 { return h.connectCalls.Load() }

// SubmitCalls reports how many SubmitOrder attempts were made (tests).
func (h *SimHandle) SubmitCalls() int64 { return h.submitCalls.Load() }

// ForceDrop simulates an unexpected connection loss.
func (h *SimHandle) ForceDrop(reason string) {
	if h.connected.Swap(false) {
		if cb := h.callbacks(); cb.OnDisconnect != nil {
			cb.OnDisconnect(h.desc.Name, reason)
		}
	}
}

func (h *SimHandle) Name() string { return h.desc.Name }

func (h *SimHandle) Connected() bool { return h.connected.Load() }

func (h *SimHandle) SetCallbacks(cb Callbacks) {
	h.cbMu.Lock()
	h.cb = cb
	h.cbMu.Unlock()
}

func (h *SimHandle) callbacks() Callbacks {
	h.cbMu.RLock()
	defer h.cbMu.RUnlock()
	return h.cb
}

func (h *SimHandle) sleep(ctx context.Context) error {
	d := time.Duration(h.latency.Load())
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (h *SimHandle) Connect(ctx context.Context) error {
	h.connectCalls.Add(1)
	if h.connected.Load() {
		return nil
	}
	if err := h.sleep(ctx); err != nil {
		return err
	}
	if h.failConnect.Load() {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: simulated connect failure", h.desc.Name)
	}
	h.connected.Store(true)
	simLog.Debugf("connected: gateway=%s", h.desc.Name)
	if cb := h.callbacks(); cb.OnConnect != nil {
		cb.OnConnect(h.desc.Name)
	}
	return nil
}

func (h *SimHandle) Disconnect(ctx context.Context) error {
	if !h.connected.Swap(false) {
		return nil
	}
	h.authed.Store(false)
	simLog.Debugf("disconnected: gateway=%s", h.desc.Name)
	if cb := h.callbacks(); cb.OnDisconnect != nil {
		cb.OnDisconnect(h.desc.Name, "requested")
	}
	return nil
}

func (h *SimHandle) Authenticate(ctx context.Context) error {
	if !h.connected.Load() {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	h.authed.Store(true)
	return nil
}

func (h *SimHandle) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	h.submitCalls.Add(1)
	if !h.connected.Load() {
		return "", errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	if err := h.sleep(ctx); err != nil {
		return "", err
	}
	if h.failSubmit.Load() {
		return "", errors.Errorf("gateway %s: simulated order rejection", h.desc.Name)
	}

	orderID := "sim_" + uuid.NewString()
	h.mu.Lock()
	h.orders[orderID] = spec
	pos := h.positions[spec.Symbol]
	pos.Gateway = h.desc.Name
	pos.Symbol = spec.Symbol
	pos.Side = spec.Side
	pos.Quantity = pos.Quantity.Add(spec.Quantity)
	pos.AvgPrice = spec.Price
	pos.UpdatedAt = time.Now()
	h.positions[spec.Symbol] = pos
	h.mu.Unlock()

	if cb := h.callbacks(); cb.OnOrder != nil {
		cb.OnOrder(h.desc.Name, orderID, "FILLED")
	}
	return orderID, nil
}

func (h *SimHandle) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if !h.connected.Load() {
		return false, errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	if err := h.sleep(ctx); err != nil {
		return false, err
	}

	h.mu.Lock()
	_, ok := h.orders[orderID]
	if ok {
		delete(h.orders, orderID)
	}
	h.mu.Unlock()

	if ok {
		if cb := h.callbacks(); cb.OnOrder != nil {
			cb.OnOrder(h.desc.Name, orderID, "CANCELED")
		}
	}
	return ok, nil
}

func (h *SimHandle) QueryAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if !h.connected.Load() {
		return nil, errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	if err := h.sleep(ctx); err != nil {
		return nil, err
	}
	return &domain.AccountInfo{
		Gateway:   h.desc.Name,
		Currency:  "USD",
		Balance:   decimal.NewFromInt(100000),
		Available: decimal.NewFromInt(100000),
		UpdatedAt: time.Now(),
	}, nil
}

func (h *SimHandle) QueryPositions(ctx context.Context) ([]domain.Position, error) {
	if !h.connected.Load() {
		return nil, errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	if err := h.sleep(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	out := make([]domain.Position, 0, len(h.positions))
	for _, pos := range h.positions {
		out = append(out, pos)
	}
	h.mu.Unlock()
	return out, nil
}

func (h *SimHandle) SubscribeMarketData(ctx context.Context, symbols []string) (bool, error) {
	if !h.connected.Load() {
		return false, errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	h.mu.Lock()
	for _, sym := range symbols {
		h.subs[sym] = struct{}{}
	}
	h.mu.Unlock()
	return true, nil
}

func (h *SimHandle) Ping(ctx context.Context) error {
	if !h.connected.Load() {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}
	if h.failPing.Load() {
		return errors.Errorf("gateway %s: simulated ping failure", h.desc.Name)
	}
	return nil
}

var _ Handle = (*SimHandle)(nil)
