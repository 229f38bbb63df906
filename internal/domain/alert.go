package domain

import (
	"time"
)

// MetricType selects which sample stream an alert rule watches.
type MetricType string

const (
	MetricLatency     MetricType = "latency"
	MetricSuccessRate MetricType = "successRate"
	MetricErrorRate   MetricType = "errorRate"
	MetricConnection  MetricType = "connection"
)

// Condition compares a metric value against a rule threshold.
type Condition string

const (
	CondGreaterThan Condition = ">"
	CondGreaterEq   Condition = ">="
	CondLessThan    Condition = "<"
	CondLessEq      Condition = "<="
	CondEqual       Condition = "=="
)

// AlertLevel is the severity attached to a fired alert.
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// AlertRule is registered at startup. Threshold and Enabled are
// hot-updatable; the rest is immutable once registered.
type AlertRule struct {
	Name                  string     `yaml:"name" json:"name"`
	MetricType            MetricType `yaml:"metricType" json:"metricType"`
	Condition             Condition  `yaml:"condition" json:"condition"`
	Threshold             float64    `yaml:"threshold" json:"threshold"`
	Level                 AlertLevel `yaml:"level" json:"level"`
	ConsecutiveViolations int        `yaml:"consecutiveViolations" json:"consecutiveViolations"`
	CooldownSeconds       int        `yaml:"cooldownSeconds" json:"cooldownSeconds"`
	Enabled               bool       `yaml:"enabled" json:"enabled"`
}

// Violated evaluates the rule comparison against a sample value.
func (r *AlertRule) Violated(value float64) bool {
	switch r.Condition {
	case CondGreaterThan:
		return value > r.Threshold
	case CondGreaterEq:
		return value >= r.Threshold
	case CondLessThan:
		return value < r.Threshold
	case CondLessEq:
		return value <= r.Threshold
	case CondEqual:
		return value == r.Threshold
	default:
		return false
	}
}

// Alert is one fired rule violation for a (rule, gateway) pair.
type Alert struct {
	ID                string     `json:"id"`
	RuleName          string     `json:"ruleName"`
	GatewayName       string     `json:"gatewayName"`
	Level             AlertLevel `json:"level"`
	Message           string     `json:"message"`
	MetricValue       float64    `json:"metricValue"`
	Threshold         float64    `json:"threshold"`
	Timestamp         time.Time  `json:"timestamp"`
	Resolved          bool       `json:"resolved"`
	ResolvedTimestamp *time.Time `json:"resolvedTimestamp,omitempty"`
}
