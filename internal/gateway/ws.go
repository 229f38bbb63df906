package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/pkg/ratelimit"
)

var wsLog = logrus.WithField("component", "gateway_ws")

// wsCommand is a client request on the socket. ID correlates the response.
type wsCommand struct {
	ID     int64       `json:"id"`
	Action string      `json:"action"`
	Params interface{} `json:"params,omitempty"`
}

// wsResponse answers a command or carries a pushed event.
type wsResponse struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSHandle speaks a neutral JSON command protocol over a websocket: commands
// (order.submit, order.cancel, account.query, positions.query,
// marketdata.subscribe, session.auth) are correlated by id; everything else
// is a pushed event routed to the callbacks.
type WSHandle struct {
	desc   domain.GatewayDescriptor
	limits *ratelimit.Manager

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	connected atomic.Bool
	authed    atomic.Bool

	cbMu sync.RWMutex
	cb   Callbacks

	pendingMu sync.Mutex
	pending   map[int64]chan wsResponse
	cmdID     atomic.Int64

	readDone chan struct{}

	writeTimeout time.Duration
}

func NewWSHandle(desc domain.GatewayDescriptor, limits *ratelimit.Manager) *WSHandle {
	return &WSHandle{
		desc:         desc,
		limits:       limits,
		pending:      make(map[int64]chan wsResponse),
		writeTimeout: 5 * time.Second,
	}
}

func (h *WSHandle) Name() string { return h.desc.Name }

func (h *WSHandle) Connected() bool { return h.connected.Load() }

func (h *WSHandle) SetCallbacks(cb Callbacks) {
	h.cbMu.Lock()
	h.cb = cb
	h.cbMu.Unlock()
}

func (h *WSHandle) callbacks() Callbacks {
	h.cbMu.RLock()
	defer h.cbMu.RUnlock()
	return h.cb
}

// Connect dials the endpoint and starts the read loop. Already-connected is
// a no-op success.
func (h *WSHandle) Connect(ctx context.Context) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.connected.Load() {
		return nil
	}

	dialer := websocket.Dialer{}
	if h.desc.ConnectionTimeout > 0 {
		dialer.HandshakeTimeout = h.desc.ConnectionTimeout
	}

	conn, _, err := dialer.DialContext(ctx, h.desc.Endpoint, nil)
	if err != nil {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: dial %s: %v", h.desc.Name, h.desc.Endpoint, err)
	}

	h.conn = conn
	h.readDone = make(chan struct{})
	h.connected.Store(true)

	go h.readLoop(conn, h.readDone)

	wsLog.Infof("connected: gateway=%s endpoint=%s", h.desc.Name, h.desc.Endpoint)
	if cb := h.callbacks(); cb.OnConnect != nil {
		cb.OnConnect(h.desc.Name)
	}
	return nil
}

// Disconnect closes the socket and waits for the read loop to exit.
// Already-disconnected is a no-op success.
func (h *WSHandle) Disconnect(ctx context.Context) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if !h.connected.Swap(false) {
		return nil
	}
	h.authed.Store(false)

	conn := h.conn
	h.conn = nil

	h.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.writeTimeout))
	h.writeMu.Unlock()
	_ = conn.Close()

	select {
	case <-h.readDone:
	case <-ctx.Done():
	case <-time.After(h.writeTimeout):
	}

	h.failPending(errors.Errorf("gateway %s: disconnected", h.desc.Name))

	wsLog.Infof("disconnected: gateway=%s", h.desc.Name)
	if cb := h.callbacks(); cb.OnDisconnect != nil {
		cb.OnDisconnect(h.desc.Name, "requested")
	}
	return nil
}

func (h *WSHandle) Authenticate(ctx context.Context) error {
	if h.authed.Load() {
		return nil
	}
	if _, err := h.call(ctx, "session.auth", nil); err != nil {
		return errors.Wrapf(err, "gateway %s: authenticate", h.desc.Name)
	}
	h.authed.Store(true)
	return nil
}

func (h *WSHandle) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":order:submit"); err != nil {
		return "", err
	}

	payload, err := h.call(ctx, "order.submit", spec)
	if err != nil {
		return "", errors.Wrapf(err, "gateway %s: submit order", h.desc.Name)
	}

	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", errors.Wrapf(err, "gateway %s: submit order response", h.desc.Name)
	}
	if out.OrderID == "" {
		return "", errors.Errorf("gateway %s: submit order: empty order id", h.desc.Name)
	}

	if cb := h.callbacks(); cb.OnOrder != nil {
		cb.OnOrder(h.desc.Name, out.OrderID, "SUBMITTED")
	}
	return out.OrderID, nil
}

func (h *WSHandle) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":order:cancel"); err != nil {
		return false, err
	}

	payload, err := h.call(ctx, "order.cancel", map[string]string{"orderId": orderID})
	if err != nil {
		return false, errors.Wrapf(err, "gateway %s: cancel order %s", h.desc.Name, orderID)
	}

	var out struct {
		Canceled bool `json:"canceled"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return false, errors.Wrapf(err, "gateway %s: cancel order response", h.desc.Name)
	}

	if out.Canceled {
		if cb := h.callbacks(); cb.OnOrder != nil {
			cb.OnOrder(h.desc.Name, orderID, "CANCELED")
		}
	}
	return out.Canceled, nil
}

func (h *WSHandle) QueryAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":query"); err != nil {
		return nil, err
	}

	payload, err := h.call(ctx, "account.query", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway %s: query account", h.desc.Name)
	}

	var out domain.AccountInfo
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, errors.Wrapf(err, "gateway %s: account response", h.desc.Name)
	}
	out.Gateway = h.desc.Name
	return &out, nil
}

func (h *WSHandle) QueryPositions(ctx context.Context) ([]domain.Position, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":query"); err != nil {
		return nil, err
	}

	payload, err := h.call(ctx, "positions.query", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway %s: query positions", h.desc.Name)
	}

	var out []domain.Position
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, errors.Wrapf(err, "gateway %s: positions response", h.desc.Name)
	}
	for i := range out {
		out[i].Gateway = h.desc.Name
	}
	return out, nil
}

func (h *WSHandle) SubscribeMarketData(ctx context.Context, symbols []string) (bool, error) {
	if err := h.limits.Wait(ctx, h.desc.Name+":subscribe"); err != nil {
		return false, err
	}

	if _, err := h.call(ctx, "marketdata.subscribe", map[string]interface{}{"symbols": symbols}); err != nil {
		return false, errors.Wrapf(err, "gateway %s: subscribe market data", h.desc.Name)
	}
	return true, nil
}

// Ping sends a websocket ping control frame.
func (h *WSHandle) Ping(ctx context.Context) error {
	h.connMu.Lock()
	conn := h.conn
	h.connMu.Unlock()
	if conn == nil || !h.connected.Load() {
		return errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}

	deadline := time.Now().Add(h.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// call sends a command and waits for the correlated response.
func (h *WSHandle) call(ctx context.Context, action string, params interface{}) (json.RawMessage, error) {
	h.connMu.Lock()
	conn := h.conn
	h.connMu.Unlock()
	if conn == nil || !h.connected.Load() {
		return nil, errors.Wrapf(domain.ErrConnection, "gateway %s: not connected", h.desc.Name)
	}

	id := h.cmdID.Add(1)
	respC := make(chan wsResponse, 1)

	h.pendingMu.Lock()
	h.pending[id] = respC
	h.pendingMu.Unlock()

	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	data, err := json.Marshal(wsCommand{ID: id, Action: action, Params: params})
	if err != nil {
		return nil, err
	}

	h.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	h.writeMu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "write %s", action)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respC:
		if !resp.OK {
			return nil, errors.Errorf("%s rejected: %s", action, resp.Error)
		}
		return resp.Payload, nil
	}
}

func (h *WSHandle) failPending(err error) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	for id, ch := range h.pending {
		select {
		case ch <- wsResponse{ID: id, OK: false, Error: err.Error()}:
		default:
		}
		delete(h.pending, id)
	}
}

// readLoop routes correlated responses to waiting callers and pushed events
// to the callbacks. A read error flips the handle to disconnected.
func (h *WSHandle) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if h.connected.Swap(false) {
				wsLog.Warnf("read loop ended: gateway=%s err=%v", h.desc.Name, err)
				h.failPending(err)
				if cb := h.callbacks(); cb.OnDisconnect != nil {
					cb.OnDisconnect(h.desc.Name, err.Error())
				}
			}
			return
		}

		var resp wsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			wsLog.Warnf("unparseable message: gateway=%s err=%v", h.desc.Name, err)
			continue
		}

		if resp.ID != 0 {
			h.pendingMu.Lock()
			ch, ok := h.pending[resp.ID]
			h.pendingMu.Unlock()
			if ok {
				select {
				case ch <- resp:
				default:
				}
			}
			continue
		}

		h.dispatchEvent(resp)
	}
}

func (h *WSHandle) dispatchEvent(resp wsResponse) {
	cb := h.callbacks()
	switch resp.Type {
	case "order":
		var ev struct {
			OrderID string `json:"orderId"`
			Status  string `json:"status"`
		}
		if json.Unmarshal(resp.Payload, &ev) == nil && cb.OnOrder != nil {
			cb.OnOrder(h.desc.Name, ev.OrderID, ev.Status)
		}
	case "trade":
		var ev struct {
			OrderID string `json:"orderId"`
		}
		if json.Unmarshal(resp.Payload, &ev) == nil && cb.OnTrade != nil {
			cb.OnTrade(h.desc.Name, ev.OrderID, resp.Payload)
		}
	case "position":
		var pos domain.Position
		if json.Unmarshal(resp.Payload, &pos) == nil && cb.OnPosition != nil {
			pos.Gateway = h.desc.Name
			cb.OnPosition(h.desc.Name, pos)
		}
	case "account":
		var acc domain.AccountInfo
		if json.Unmarshal(resp.Payload, &acc) == nil && cb.OnAccount != nil {
			acc.Gateway = h.desc.Name
			cb.OnAccount(h.desc.Name, acc)
		}
	case "error":
		if cb.OnError != nil {
			cb.OnError(h.desc.Name, errors.Errorf("gateway %s: %s", h.desc.Name, string(resp.Payload)))
		}
	default:
		wsLog.Debugf("ignoring message: gateway=%s type=%s", h.desc.Name, resp.Type)
	}
}

var _ Handle = (*WSHandle)(nil)
