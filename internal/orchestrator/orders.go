package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
)

// SubmitOrder routes an order to gatewayName when given, otherwise to the
// strategy's pick, and returns the broker order id. There is no automatic
// retry on another gateway: the caller decides whether to resubmit.
func (o *Orchestrator) SubmitOrder(ctx context.Context, spec domain.OrderSpec, gatewayName string) (string, error) {
	m, err := o.route(gatewayName)
	if err != nil {
		return "", err
	}
	name := m.Name()

	timeout := m.Descriptor().OrderTimeout
	if timeout <= 0 {
		timeout = defaultOrderTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	orderID, err := m.Handle().SubmitOrder(opCtx, spec)
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		m.MarkOrder(false)
		m.RecordError(err)
		if o.collector != nil {
			o.collector.RecordOrderResult(name, false)
			o.collector.RecordError(name, "order_submit", err.Error())
		}
		err = wrapTimeout(err, "submit order on %s", name)
		log.Warnf("order submit failed: gateway=%s symbol=%s err=%v", name, spec.Symbol, err)
		return "", err
	}

	m.MarkOrder(true)
	m.RecordLatency(latencyMs)
	if o.collector != nil {
		o.collector.RecordLatency(name, latencyMs)
		o.collector.RecordOrderResult(name, true)
	}
	if putErr := o.orders.Put(orderID, name); putErr != nil {
		log.Warnf("order index write failed: order=%s gateway=%s err=%v", orderID, name, putErr)
	}
	o.publish(domain.EventOrderSubmitted, OrderEvent{
		Gateway:       name,
		OrderID:       orderID,
		ClientOrderID: spec.ClientOrderID,
		Symbol:        spec.Symbol,
		Status:        "SUBMITTED",
	})
	log.Infof("order submitted: gateway=%s symbol=%s side=%s id=%s latency=%.1fms",
		name, spec.Symbol, spec.Side, orderID, latencyMs)
	return orderID, nil
}

// CancelOrder forwards the cancel to gatewayName when given, otherwise to
// the owning gateway resolved through the order index. An id the index does
// not know is ErrOrderNotFound; a named gateway that is unknown or down is
// ErrGatewayUnavailable.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID string, gatewayName string) (bool, error) {
	name := gatewayName
	if name == "" {
		owner, err := o.orders.Get(orderID)
		if err != nil {
			return false, err
		}
		name = owner
	}

	m := o.managedByName(name)
	if m == nil || !m.Healthy() {
		return false, errors.Wrapf(domain.ErrGatewayUnavailable,
			"cancel order %s: gateway %s not connected", orderID, name)
	}

	timeout := m.Descriptor().OrderTimeout
	if timeout <= 0 {
		timeout = defaultOrderTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := m.Handle().CancelOrder(opCtx, orderID)
	if err != nil {
		m.RecordError(err)
		if o.collector != nil {
			o.collector.RecordError(name, "order_cancel", err.Error())
		}
		return false, wrapTimeout(err, "cancel order %s on %s", orderID, name)
	}

	if delErr := o.orders.Delete(orderID); delErr != nil {
		log.Warnf("order index delete failed: order=%s err=%v", orderID, delErr)
	}
	if !ok {
		// The broker no longer knows the id (already filled or expired).
		return false, errors.Wrapf(domain.ErrOrderNotFound, "order %s on %s", orderID, name)
	}

	o.publish(domain.EventOrderCanceled, OrderEvent{Gateway: name, OrderID: orderID, Status: "CANCELED"})
	log.Infof("order canceled: gateway=%s id=%s", name, orderID)
	return true, nil
}
