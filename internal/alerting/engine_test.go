package alerting

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
)

func latencyRule(cv, cooldown int) domain.AlertRule {
	return domain.AlertRule{
		Name:                  "latency-high",
		MetricType:            domain.MetricLatency,
		Condition:             domain.CondGreaterThan,
		Threshold:             500,
		Level:                 domain.LevelWarning,
		ConsecutiveViolations: cv,
		CooldownSeconds:       cooldown,
		Enabled:               true,
	}
}

func TestConsecutiveViolationsGate(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(3, 0)); err != nil {
		t.Fatal(err)
	}

	var fired []domain.Alert
	e.AddSubscriber(func(a domain.Alert) {
		if !a.Resolved {
			fired = append(fired, a)
		}
	})

	e.Evaluate("alpha", domain.MetricLatency, 800)
	e.Evaluate("alpha", domain.MetricLatency, 900)
	if len(fired) != 0 {
		t.Fatalf("fired after 2 violations, want gate at 3")
	}
	e.Evaluate("alpha", domain.MetricLatency, 700)
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}
	if fired[0].GatewayName != "alpha" || fired[0].Level != domain.LevelWarning {
		t.Fatalf("alert = %+v", fired[0])
	}
	if len(e.ActiveAlerts()) != 1 {
		t.Fatalf("active = %d, want 1", len(e.ActiveAlerts()))
	}
}

func TestNonViolationResetsCounter(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(3, 0)); err != nil {
		t.Fatal(err)
	}

	e.Evaluate("alpha", domain.MetricLatency, 800)
	e.Evaluate("alpha", domain.MetricLatency, 900)
	e.Evaluate("alpha", domain.MetricLatency, 100) // resets
	e.Evaluate("alpha", domain.MetricLatency, 800)
	e.Evaluate("alpha", domain.MetricLatency, 900)

	if len(e.ActiveAlerts()) != 0 {
		t.Fatal("counter should have reset on the healthy sample")
	}
}

func TestAtMostOneUnresolvedPerPair(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(1, 0)); err != nil {
		t.Fatal(err)
	}

	count := 0
	e.AddSubscriber(func(a domain.Alert) {
		if !a.Resolved {
			count++
		}
	})

	for i := 0; i < 5; i++ {
		e.Evaluate("alpha", domain.MetricLatency, 999)
	}
	if count != 1 {
		t.Fatalf("fired %d times for one sustained violation, want 1", count)
	}
}

func TestResolution(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(1, 0)); err != nil {
		t.Fatal(err)
	}

	var resolved []domain.Alert
	e.AddSubscriber(func(a domain.Alert) {
		if a.Resolved {
			resolved = append(resolved, a)
		}
	})

	e.Evaluate("alpha", domain.MetricLatency, 999)
	e.Evaluate("alpha", domain.MetricLatency, 50)

	if len(resolved) != 1 {
		t.Fatalf("resolved = %d, want 1", len(resolved))
	}
	if resolved[0].ResolvedTimestamp == nil {
		t.Fatal("resolved alert missing timestamp")
	}
	if len(e.ActiveAlerts()) != 0 {
		t.Fatal("alert still active after resolution")
	}
	if len(e.History()) != 1 {
		t.Fatalf("history = %d, want 1", len(e.History()))
	}
}

func TestCooldownSuppressesRefire(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(1, 300)); err != nil {
		t.Fatal(err)
	}

	count := 0
	e.AddSubscriber(func(a domain.Alert) {
		if !a.Resolved {
			count++
		}
	})

	e.Evaluate("alpha", domain.MetricLatency, 999)
	e.Evaluate("alpha", domain.MetricLatency, 50) // resolves
	e.Evaluate("alpha", domain.MetricLatency, 999)

	if count != 1 {
		t.Fatalf("fired %d times inside cooldown, want 1", count)
	}
}

func TestSuccessRateRule(t *testing.T) {
	e := NewEngine(nil)
	err := e.RegisterRule(domain.AlertRule{
		Name:                  "success-rate-low",
		MetricType:            domain.MetricSuccessRate,
		Condition:             domain.CondLessThan,
		Threshold:             95,
		Level:                 domain.LevelWarning,
		ConsecutiveViolations: 1,
		Enabled:               true,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Evaluate("alpha", domain.MetricSuccessRate, 90)
	active := e.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	if active[0].MetricValue != 90 || active[0].Threshold != 95 {
		t.Fatalf("alert = %+v", active[0])
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(1, 0)); err != nil {
		t.Fatal(err)
	}

	got := 0
	e.AddSubscriber(func(domain.Alert) { panic("boom") })
	e.AddSubscriber(func(domain.Alert) { got++ })

	e.Evaluate("alpha", domain.MetricLatency, 999)
	if got != 1 {
		t.Fatalf("second subscriber saw %d alerts, want 1", got)
	}
}

func TestUpdateRule(t *testing.T) {
	e := NewEngine(nil)
	if err := e.RegisterRule(latencyRule(1, 0)); err != nil {
		t.Fatal(err)
	}

	if err := e.UpdateRule("latency-high", 100, true); err != nil {
		t.Fatal(err)
	}
	e.Evaluate("alpha", domain.MetricLatency, 200)
	if len(e.ActiveAlerts()) != 1 {
		t.Fatal("lowered threshold not applied")
	}

	if err := e.UpdateRule("missing", 1, true); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestDisabledRuleSkipped(t *testing.T) {
	e := NewEngine(nil)
	r := latencyRule(1, 0)
	r.Enabled = false
	if err := e.RegisterRule(r); err != nil {
		t.Fatal(err)
	}
	e.Evaluate("alpha", domain.MetricLatency, 999)
	if len(e.ActiveAlerts()) != 0 {
		t.Fatal("disabled rule fired")
	}
}
