package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
)

// Managed pairs a handle with its descriptor and the mutable status record.
// The status is only touched through Managed methods, which makes it safe
// for the supervisor and the orchestrator to share one instance.
type Managed struct {
	desc   domain.GatewayDescriptor
	handle Handle

	mu     sync.RWMutex
	status domain.GatewayStatus
}

func NewManaged(desc domain.GatewayDescriptor, handle Handle) *Managed {
	return &Managed{
		desc:   desc,
		handle: handle,
		status: domain.GatewayStatus{Name: desc.Name},
	}
}

func (m *Managed) Name() string { return m.desc.Name }

func (m *Managed) Descriptor() domain.GatewayDescriptor { return m.desc }

func (m *Managed) Handle() Handle { return m.handle }

// Status returns a copy of the current status.
func (m *Managed) Status() domain.GatewayStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Snapshot()
}

// Healthy reports routing eligibility.
func (m *Managed) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy()
}

// Connect dials and authenticates under the descriptor's connection
// timeout, updating the status record either way.
func (m *Managed) Connect(ctx context.Context) error {
	timeout := m.desc.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.handle.Connect(ctx); err != nil {
		m.recordFailure(err)
		return errors.Wrapf(err, "connect gateway %s", m.desc.Name)
	}
	if err := m.handle.Authenticate(ctx); err != nil {
		_ = m.handle.Disconnect(ctx)
		m.recordFailure(err)
		return errors.Wrapf(err, "authenticate gateway %s", m.desc.Name)
	}

	m.mu.Lock()
	m.status.Connected = true
	m.status.Authenticated = true
	m.status.LastConnectTime = time.Now()
	m.status.LastHeartbeat = time.Now()
	m.status.ErrorCount = 0
	m.status.LastError = ""
	m.mu.Unlock()
	return nil
}

// Disconnect tears the connection down and marks the status.
func (m *Managed) Disconnect(ctx context.Context) error {
	err := m.handle.Disconnect(ctx)

	m.mu.Lock()
	m.status.Connected = false
	m.status.Authenticated = false
	m.status.LastDisconnectTime = time.Now()
	m.mu.Unlock()

	if err != nil {
		return errors.Wrapf(err, "disconnect gateway %s", m.desc.Name)
	}
	return nil
}

// Ping probes the handle. Success refreshes the heartbeat; failure only
// records the error, it never tears down.
func (m *Managed) Ping(ctx context.Context) error {
	if err := m.handle.Ping(ctx); err != nil {
		m.recordFailure(err)
		return err
	}
	m.mu.Lock()
	m.status.LastHeartbeat = time.Now()
	m.mu.Unlock()
	return nil
}

// MarkDisconnected records an adapter-reported drop (read-loop death,
// server close). The handle is already down at this point.
func (m *Managed) MarkDisconnected(reason string) {
	m.mu.Lock()
	m.status.Connected = false
	m.status.Authenticated = false
	m.status.LastDisconnectTime = time.Now()
	if reason != "" {
		m.status.LastError = reason
	}
	m.mu.Unlock()
}

// MarkOrder folds one order outcome into the counters.
func (m *Managed) MarkOrder(success bool) {
	m.mu.Lock()
	m.status.OrdersCount++
	if success {
		m.status.SuccessfulOrders++
	} else {
		m.status.FailedOrders++
	}
	m.mu.Unlock()
}

// RecordLatency updates the running average latency (EWMA, alpha 0.2).
func (m *Managed) RecordLatency(latencyMs float64) {
	m.mu.Lock()
	if m.status.AvgLatencyMs == 0 {
		m.status.AvgLatencyMs = latencyMs
	} else {
		m.status.AvgLatencyMs = m.status.AvgLatencyMs*0.8 + latencyMs*0.2
	}
	m.mu.Unlock()
}

func (m *Managed) recordFailure(err error) {
	m.mu.Lock()
	m.status.ErrorCount++
	m.status.LastError = err.Error()
	m.mu.Unlock()
}

// RecordError notes a non-connection operational error on the status.
func (m *Managed) RecordError(err error) {
	if err == nil {
		return
	}
	m.recordFailure(err)
}
