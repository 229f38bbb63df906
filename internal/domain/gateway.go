package domain

import (
	"time"
)

// BackendType tags a concrete broker adapter implementation.
type BackendType string

const (
	BackendREST BackendType = "rest"
	BackendWS   BackendType = "ws"
	BackendSim  BackendType = "sim"
)

// GatewayDescriptor is the immutable per-gateway configuration, fixed at
// orchestrator initialization.
type GatewayDescriptor struct {
	Name              string        `yaml:"name" json:"name"`
	BackendType       BackendType   `yaml:"backendType" json:"backendType"`
	Endpoint          string        `yaml:"endpoint" json:"endpoint"`
	Weight            int           `yaml:"weight" json:"weight"`
	Priority          int           `yaml:"priority" json:"priority"`
	MinConnections    int           `yaml:"minConnections" json:"minConnections"`
	MaxConnections    int           `yaml:"maxConnections" json:"maxConnections"`
	ConnectionTimeout time.Duration `yaml:"connectionTimeout" json:"connectionTimeout"`
	OrderTimeout      time.Duration `yaml:"orderTimeout" json:"orderTimeout"`
	QueryTimeout      time.Duration `yaml:"queryTimeout" json:"queryTimeout"`
	AutoReconnect     bool          `yaml:"autoReconnect" json:"autoReconnect"`
	IsPrimary         bool          `yaml:"isPrimary" json:"isPrimary"`
}

// GatewayStatus is the mutable health/accounting record for one gateway.
// The orchestrator owns it; readers take copies via Snapshot.
type GatewayStatus struct {
	Name               string    `json:"name"`
	Connected          bool      `json:"connected"`
	Authenticated      bool      `json:"authenticated"`
	LastConnectTime    time.Time `json:"lastConnectTime"`
	LastDisconnectTime time.Time `json:"lastDisconnectTime"`
	LastHeartbeat      time.Time `json:"lastHeartbeat"`
	ErrorCount         int       `json:"errorCount"`
	LastError          string    `json:"lastError"`
	AvgLatencyMs       float64   `json:"avgLatencyMs"`
	OrdersCount        int64     `json:"ordersCount"`
	SuccessfulOrders   int64     `json:"successfulOrders"`
	FailedOrders       int64     `json:"failedOrders"`
}

// Healthy reports routing eligibility. Disconnected gateways are never
// routed to.
func (s *GatewayStatus) Healthy() bool {
	return s != nil && s.Connected
}

// Snapshot returns a copy safe to hand outside the owning lock.
func (s *GatewayStatus) Snapshot() GatewayStatus {
	return *s
}
