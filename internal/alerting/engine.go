package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/internal/events"
	"github.com/gatelink/gogate/internal/metrics"
)

var log = logrus.WithField("component", "alert_engine")

// Subscriber receives every fired and resolved alert. Panics are isolated
// per subscriber.
type Subscriber func(alert domain.Alert)

// pairState is the hysteresis state for one (rule, gateway) pair.
type pairState struct {
	violations int
	lastFired  time.Time
	active     *domain.Alert // unresolved alert, nil when none
}

// Engine evaluates alert rules against metric samples pushed by the
// collector. One Engine instance serves all gateways.
type Engine struct {
	mu    sync.Mutex
	rules map[string]*domain.AlertRule
	state map[string]*pairState // key: ruleName + "\x00" + gateway

	history    []domain.Alert
	maxHistory int

	subMu sync.RWMutex
	subs  []Subscriber

	bus *events.Bus
}

// NewEngine builds an engine publishing to bus (nil is allowed for tests).
func NewEngine(bus *events.Bus) *Engine {
	return &Engine{
		rules:      make(map[string]*domain.AlertRule),
		state:      make(map[string]*pairState),
		maxHistory: 500,
		bus:        bus,
	}
}

// RegisterRule adds or replaces a rule by name.
func (e *Engine) RegisterRule(rule domain.AlertRule) error {
	if rule.Name == "" {
		return errors.Wrap(domain.ErrConfiguration, "alert rule: empty name")
	}
	if rule.ConsecutiveViolations <= 0 {
		rule.ConsecutiveViolations = 1
	}
	e.mu.Lock()
	r := rule
	e.rules[rule.Name] = &r
	e.mu.Unlock()
	log.Infof("rule registered: name=%s metric=%s %s %.2f level=%s",
		rule.Name, rule.MetricType, rule.Condition, rule.Threshold, rule.Level)
	return nil
}

// UpdateRule hot-updates threshold and enabled for an existing rule.
// Takes effect on the next evaluation.
func (e *Engine) UpdateRule(name string, threshold float64, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[name]
	if !ok {
		return errors.Wrapf(domain.ErrConfiguration, "unknown alert rule %q", name)
	}
	r.Threshold = threshold
	r.Enabled = enabled
	log.Infof("rule updated: name=%s threshold=%.2f enabled=%v", name, threshold, enabled)
	return nil
}

// Rules returns a snapshot of the registered rules.
func (e *Engine) Rules() []domain.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// AddSubscriber registers an alert subscriber.
func (e *Engine) AddSubscriber(sub Subscriber) {
	if sub == nil {
		return
	}
	e.subMu.Lock()
	e.subs = append(e.subs, sub)
	e.subMu.Unlock()
}

// Observe is the collector-facing hook: wire it with
// collector.AddObserver(engine.Observe).
func (e *Engine) Observe(sample metrics.Sample) {
	e.Evaluate(sample.Gateway, sample.Metric, sample.Value)
}

// Evaluate runs every enabled rule for the metric type against the value.
// Firing requires the configured number of consecutive violations and
// respects the per-pair cooldown. A non-violating value resolves the
// pair's active alert and resets its counter.
func (e *Engine) Evaluate(gateway string, metric domain.MetricType, value float64) {
	var fired, resolved []domain.Alert

	e.mu.Lock()
	now := time.Now()
	for _, rule := range e.rules {
		if !rule.Enabled || rule.MetricType != metric {
			continue
		}
		key := rule.Name + "\x00" + gateway
		st := e.state[key]
		if st == nil {
			st = &pairState{}
			e.state[key] = st
		}

		if !rule.Violated(value) {
			st.violations = 0
			if st.active != nil {
				a := *st.active
				ts := now
				a.Resolved = true
				a.ResolvedTimestamp = &ts
				e.appendHistoryLocked(a)
				st.active = nil
				resolved = append(resolved, a)
			}
			continue
		}

		st.violations++
		if st.violations < rule.ConsecutiveViolations {
			continue
		}
		if st.active != nil {
			continue // at most one unresolved alert per pair
		}
		cooldown := time.Duration(rule.CooldownSeconds) * time.Second
		if cooldown > 0 && !st.lastFired.IsZero() && now.Sub(st.lastFired) < cooldown {
			continue
		}

		alert := domain.Alert{
			ID:          uuid.NewString(),
			RuleName:    rule.Name,
			GatewayName: gateway,
			Level:       rule.Level,
			Message: fmt.Sprintf("%s: %s %s %.2f (observed %.2f) on %s",
				rule.Name, rule.MetricType, rule.Condition, rule.Threshold, value, gateway),
			MetricValue: value,
			Threshold:   rule.Threshold,
			Timestamp:   now,
		}
		st.active = &alert
		st.lastFired = now
		fired = append(fired, alert)
	}
	e.mu.Unlock()

	for _, a := range fired {
		log.Warnf("alert fired: rule=%s gateway=%s value=%.2f threshold=%.2f level=%s",
			a.RuleName, a.GatewayName, a.MetricValue, a.Threshold, a.Level)
		e.emit(domain.EventAlertFired, a)
	}
	for _, a := range resolved {
		log.Infof("alert resolved: rule=%s gateway=%s", a.RuleName, a.GatewayName)
		e.emit(domain.EventAlertResolved, a)
	}
}

func (e *Engine) emit(eventType domain.EventType, alert domain.Alert) {
	if e.bus != nil {
		if err := e.bus.Publish(eventType, alert); err != nil {
			log.Warnf("publish %s failed: %v", eventType, err)
		}
	}

	e.subMu.RLock()
	subs := e.subs
	e.subMu.RUnlock()
	for _, sub := range subs {
		e.deliver(sub, alert)
	}
}

func (e *Engine) deliver(sub Subscriber, alert domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("alert subscriber panic: rule=%s panic=%v (%v)",
				alert.RuleName, r, domain.ErrHandler)
		}
	}()
	sub(alert)
}

func (e *Engine) appendHistoryLocked(alert domain.Alert) {
	e.history = append(e.history, alert)
	if len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}
}

// ActiveAlerts returns the currently unresolved alerts.
func (e *Engine) ActiveAlerts() []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Alert, 0, len(e.state))
	for _, st := range e.state {
		if st.active != nil {
			out = append(out, *st.active)
		}
	}
	return out
}

// History returns resolved alerts, newest last.
func (e *Engine) History() []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Alert, len(e.history))
	copy(out, e.history)
	return out
}
