// Package config loads and validates the daemon configuration. Validation
// failures are the ErrConfiguration boundary: nothing else in the process
// re-checks descriptor shape.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/internal/routing"
)

// GatewayConfig is the file form of a gateway descriptor. Timeouts are
// whole seconds in the file and converted to durations on the way in.
type GatewayConfig struct {
	Name                 string `yaml:"name"`
	BackendType          string `yaml:"backendType"`
	Endpoint             string `yaml:"endpoint"`
	Weight               int    `yaml:"weight"`
	Priority             int    `yaml:"priority"`
	MinConnections       int    `yaml:"minConnections"`
	MaxConnections       int    `yaml:"maxConnections"`
	ConnectionTimeoutSec int    `yaml:"connectionTimeoutSec"`
	OrderTimeoutSec      int    `yaml:"orderTimeoutSec"`
	QueryTimeoutSec      int    `yaml:"queryTimeoutSec"`
	AutoReconnect        bool   `yaml:"autoReconnect"`
	IsPrimary            bool   `yaml:"isPrimary"`
}

// Descriptor converts to the domain form.
func (g GatewayConfig) Descriptor() domain.GatewayDescriptor {
	return domain.GatewayDescriptor{
		Name:              g.Name,
		BackendType:       domain.BackendType(g.BackendType),
		Endpoint:          g.Endpoint,
		Weight:            g.Weight,
		Priority:          g.Priority,
		MinConnections:    g.MinConnections,
		MaxConnections:    g.MaxConnections,
		ConnectionTimeout: time.Duration(g.ConnectionTimeoutSec) * time.Second,
		OrderTimeout:      time.Duration(g.OrderTimeoutSec) * time.Second,
		QueryTimeout:      time.Duration(g.QueryTimeoutSec) * time.Second,
		AutoReconnect:     g.AutoReconnect,
		IsPrimary:         g.IsPrimary,
	}
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type RoutingConfig struct {
	Mode string `yaml:"mode"`
}

type SupervisorConfig struct {
	CheckIntervalSec     int `yaml:"checkIntervalSec"`
	HeartbeatIntervalSec int `yaml:"heartbeatIntervalSec"`
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts"`
}

type EventsConfig struct {
	QueueSize int `yaml:"queueSize"`
}

type PoolConfig struct {
	Workers int `yaml:"workers"`
	Buffer  int `yaml:"buffer"`
}

type OpsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

type DebugConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

type OrderTableConfig struct {
	Dir string `yaml:"dir"` // empty keeps the index in memory
}

type Config struct {
	Logging    LoggingConfig      `yaml:"logging"`
	Routing    RoutingConfig      `yaml:"routing"`
	Supervisor SupervisorConfig   `yaml:"supervisor"`
	Events     EventsConfig       `yaml:"events"`
	Pool       PoolConfig         `yaml:"pool"`
	Ops        OpsConfig          `yaml:"ops"`
	Debug      DebugConfig        `yaml:"debug"`
	OrderTable OrderTableConfig   `yaml:"orderTable"`
	Gateways   []GatewayConfig    `yaml:"gateways"`
	AlertRules []domain.AlertRule `yaml:"alertRules"`
}

// Load reads, parses, defaults, and validates the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrConfiguration, "read %s: %v", path, err)
	}
	return Parse(raw)
}

// Parse is Load without the file read (tests, embedded configs).
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(domain.ErrConfiguration, "parse config: %v", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Routing.Mode == "" {
		c.Routing.Mode = string(routing.ModeActiveActive)
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = 1024
	}
	if c.Ops.ListenAddr == "" {
		c.Ops.ListenAddr = "127.0.0.1:8090"
	}
	if c.Debug.ListenAddr == "" {
		c.Debug.ListenAddr = "127.0.0.1:6061"
	}
}

var validBackends = map[string]struct{}{
	string(domain.BackendREST): {},
	string(domain.BackendWS):   {},
	string(domain.BackendSim):  {},
}

var validModes = map[string]struct{}{
	string(routing.ModeActiveActive):  {},
	string(routing.ModeActiveStandby): {},
	string(routing.ModeLoadBalance):   {},
	string(routing.ModeFailover):      {},
}

func (c *Config) Validate() error {
	if len(c.Gateways) == 0 {
		return errors.Wrap(domain.ErrConfiguration, "no gateways configured")
	}
	if _, ok := validModes[c.Routing.Mode]; !ok {
		return errors.Wrapf(domain.ErrConfiguration, "unknown routing mode %q", c.Routing.Mode)
	}

	seen := make(map[string]struct{}, len(c.Gateways))
	primaries := 0
	for _, g := range c.Gateways {
		if g.Name == "" {
			return errors.Wrap(domain.ErrConfiguration, "gateway with empty name")
		}
		if _, dup := seen[g.Name]; dup {
			return errors.Wrapf(domain.ErrConfiguration, "duplicate gateway name %q", g.Name)
		}
		seen[g.Name] = struct{}{}
		if _, ok := validBackends[g.BackendType]; !ok {
			return errors.Wrapf(domain.ErrConfiguration, "gateway %s: unknown backend type %q", g.Name, g.BackendType)
		}
		if g.BackendType != string(domain.BackendSim) && g.Endpoint == "" {
			return errors.Wrapf(domain.ErrConfiguration, "gateway %s: endpoint required", g.Name)
		}
		if g.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return errors.Wrap(domain.ErrConfiguration, "more than one primary gateway")
	}

	for _, r := range c.AlertRules {
		if r.Name == "" {
			return errors.Wrap(domain.ErrConfiguration, "alert rule with empty name")
		}
		switch r.MetricType {
		case domain.MetricLatency, domain.MetricSuccessRate, domain.MetricErrorRate, domain.MetricConnection:
		default:
			return errors.Wrapf(domain.ErrConfiguration, "rule %s: unknown metric type %q", r.Name, r.MetricType)
		}
		switch r.Condition {
		case domain.CondGreaterThan, domain.CondGreaterEq, domain.CondLessThan, domain.CondLessEq, domain.CondEqual:
		default:
			return errors.Wrapf(domain.ErrConfiguration, "rule %s: unknown condition %q", r.Name, r.Condition)
		}
	}
	return nil
}

// Descriptors converts every gateway entry to the domain form.
func (c *Config) Descriptors() []domain.GatewayDescriptor {
	out := make([]domain.GatewayDescriptor, 0, len(c.Gateways))
	for _, g := range c.Gateways {
		out = append(out, g.Descriptor())
	}
	return out
}
