package alerting

import "github.com/gatelink/gogate/internal/domain"

// DefaultRules is the rule set installed when the config file declares none.
// Thresholds follow operational experience with exchange gateways: warn
// early on latency, page on sustained failure.
func DefaultRules() []domain.AlertRule {
	return []domain.AlertRule{
		{
			Name:                  "latency-high",
			MetricType:            domain.MetricLatency,
			Condition:             domain.CondGreaterThan,
			Threshold:             500,
			Level:                 domain.LevelWarning,
			ConsecutiveViolations: 3,
			CooldownSeconds:       60,
			Enabled:               true,
		},
		{
			Name:                  "latency-critical",
			MetricType:            domain.MetricLatency,
			Condition:             domain.CondGreaterThan,
			Threshold:             2000,
			Level:                 domain.LevelCritical,
			ConsecutiveViolations: 2,
			CooldownSeconds:       60,
			Enabled:               true,
		},
		{
			Name:                  "success-rate-low",
			MetricType:            domain.MetricSuccessRate,
			Condition:             domain.CondLessThan,
			Threshold:             95,
			Level:                 domain.LevelWarning,
			ConsecutiveViolations: 5,
			CooldownSeconds:       120,
			Enabled:               true,
		},
		{
			Name:                  "error-rate-high",
			MetricType:            domain.MetricErrorRate,
			Condition:             domain.CondGreaterEq,
			Threshold:             10,
			Level:                 domain.LevelCritical,
			ConsecutiveViolations: 3,
			CooldownSeconds:       120,
			Enabled:               true,
		},
		{
			Name:                  "connection-lost",
			MetricType:            domain.MetricConnection,
			Condition:             domain.CondEqual,
			Threshold:             0,
			Level:                 domain.LevelCritical,
			ConsecutiveViolations: 1,
			CooldownSeconds:       30,
			Enabled:               true,
		},
	}
}
