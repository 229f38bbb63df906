package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/pkg/ratelimit"
)

var restLog = logrus.WithField("component", "gateway_rest")

// RESTHandle speaks a neutral JSON shape to an HTTP broker bridge:
//
//	GET  /healthz             liveness
//	POST /session             authenticate
//	POST /orders              submit   -> {orderId}
//	DELETE /orders/{id}       cancel   -> {canceled}
//	GET  /account             account snapshot
//	GET  /positions           open positions
//	POST /subscriptions       market data subscription
type RESTHandle struct {
	desc   domain.GatewayDescriptor
	client *resty.Client
	limits *ratelimit.Manager

	connected atomic.Bool
	authed    atomic.Bool

	cbMu sync.RWMutex
	cb   Callbacks
}

func NewRESTHandle(desc domain.GatewayDescriptor, limits *ratelimit.Manager) *RESTHandle {
	client := resty.New().
		SetBaseURL(desc.Endpoint).
		SetHeader("Content-Type", "application/json")
	if desc.ConnectionTimeout > 0 {
		client.SetTimeout(desc.ConnectionTimeout)
	}
	return &RESTHandle{
		desc:   desc,
		client: client,
		limits: limits,
	}
}

func (h *RESTHandle) Name() string { return h.desc.Name }

func (h *RESTHandle) Connected() bool { return h.connected.Load() }

func (h *RESTHandle) SetCallbacks(cb Callbacks) {
	h.cbMu.Lock()
	h.cb = cb
	h.cbMu.Unlock()
}

func (h *RESTHandle) callbacks() Callbacks {
	h.cbMu.RLock()
	defer h.cbMu.RUnlock()
	return h.cb
}

// Connect verifies the bridge is reachable. Already-connected is a no-op
// success.
func (h *RESTHandle) Connect(ctx context.Context) error {
	if h.connected.Load() {
		return nil
	}

	resp, err := h.client.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: health check: %v", h.desc.Name, err)
	}
	if resp.IsError() {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: health check status %d", h.desc.Name, resp.StatusCode())
	}

	h.connected.Store(true)
	restLog.Infof("connected: gateway=%s endpoint=%s", h.desc.Name, h.desc.Endpoint)
	if cb := h.callbacks(); cb.OnConnect != nil {
		cb.OnConnect(h.desc.Name)
	}
	return nil
}

// Disconnect drops the session. Already-disconnected is a no-op success.
func (h *RESTHandle) Disconnect(ctx context.Context) error {
	if !h.connected.Swap(false) {
		return nil
	}
	h.authed.Store(false)
	restLog.Infof("disconnected: gateway=%s", h.desc.Name)
	if cb := h.callbacks(); cb.OnDisconnect != nil {
		cb.OnDisconnect(h.desc.Name, "requested")
	}
	return nil
}

func (h *RESTHandle) Authenticate(ctx context.Context) error {
	if h.authed.Load() {
		return nil
	}
	resp, err := h.client.R().SetContext(ctx).Post("/session")
	if err != nil {
		return errors.Wrapf(err, "gateway %s: authenticate", h.desc.Name)
	}
	if resp.IsError() {
		return errors.Errorf("gateway %s: authenticate status %d", h.desc.Name, resp.StatusCode())
	}
	h.authed.Store(true)
	return nil
}

type submitOrderResponse struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

func (h *RESTHandle) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":order:submit"); err != nil {
		return "", err
	}

	var out submitOrderResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(spec).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return "", errors.Wrapf(err, "gateway %s: submit order", h.desc.Name)
	}
	if resp.IsError() {
		return "", errors.Errorf("gateway %s: submit order status %d: %s", h.desc.Name, resp.StatusCode(), out.Error)
	}
	if out.OrderID == "" {
		return "", errors.Errorf("gateway %s: submit order: empty order id", h.desc.Name)
	}

	if cb := h.callbacks(); cb.OnOrder != nil {
		cb.OnOrder(h.desc.Name, out.OrderID, "SUBMITTED")
	}
	return out.OrderID, nil
}

type cancelOrderResponse struct {
	Canceled bool   `json:"canceled"`
	Error    string `json:"error"`
}

func (h *RESTHandle) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":order:cancel"); err != nil {
		return false, err
	}

	var out cancelOrderResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&out).
		Delete(fmt.Sprintf("/orders/%s", orderID))
	if err != nil {
		return false, errors.Wrapf(err, "gateway %s: cancel order %s", h.desc.Name, orderID)
	}
	if resp.IsError() {
		return false, errors.Errorf("gateway %s: cancel order %s status %d: %s", h.desc.Name, orderID, resp.StatusCode(), out.Error)
	}

	if out.Canceled {
		if cb := h.callbacks(); cb.OnOrder != nil {
			cb.OnOrder(h.desc.Name, orderID, "CANCELED")
		}
	}
	return out.Canceled, nil
}

func (h *RESTHandle) QueryAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":query"); err != nil {
		return nil, err
	}

	var out domain.AccountInfo
	resp, err := h.client.R().SetContext(ctx).SetResult(&out).Get("/account")
	if err != nil {
		return nil, errors.Wrapf(err, "gateway %s: query account", h.desc.Name)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway %s: query account status %d", h.desc.Name, resp.StatusCode())
	}
	out.Gateway = h.desc.Name
	return &out, nil
}

func (h *RESTHandle) QueryPositions(ctx context.Context) ([]domain.Position, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":query"); err != nil {
		return nil, err
	}

	var out []domain.Position
	resp, err := h.client.R().SetContext(ctx).SetResult(&out).Get("/positions")
	if err != nil {
		return nil, errors.Wrapf(err, "gateway %s: query positions", h.desc.Name)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway %s: query positions status %d", h.desc.Name, resp.StatusCode())
	}
	for i := range out {
		out[i].Gateway = h.desc.Name
	}
	return out, nil
}

func (h *RESTHandle) SubscribeMarketData(ctx context.Context, symbols []string) (bool, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":subscribe"); err != nil {
		return false, err
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"symbols": symbols}).
		Post("/subscriptions")
	if err != nil {
		return false, errors.Wrapf(err, "gateway %s: subscribe market data", h.desc.Name)
	}
	if resp.IsError() {
		return false, errors.Errorf("gateway %s: subscribe status %d", h.desc.Name, resp.StatusCode())
	}
	return true, nil
}

// Ping reuses the health endpoint as the liveness probe.
func (h *RESTHandle) Ping(ctx context.Context) error {
	resp, err := h.client.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return errors.Errorf("gateway %s: ping status %d", h.desc.Name, resp.StatusCode())
	}
	return nil
}

var _ Handle = (*RESTHandle)(nil)
