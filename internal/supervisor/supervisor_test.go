package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/internal/gateway"
)

func simManaged(name string) (*gateway.Managed, *gateway.SimHandle) {
	desc := domain.GatewayDescriptor{
		Name:          name,
		BackendType:   domain.BackendSim,
		AutoReconnect: true,
	}
	h := gateway.NewSimHandle(desc)
	return gateway.NewManaged(desc, h), h
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestReconnectsDroppedGateway(t *testing.T) {
	m, h := simManaged("alpha")
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := New(Options{CheckInterval: 10 * time.Millisecond, MaxReconnectAttempts: 3})
	reconnected := make(chan string, 1)
	s.OnReconnected = func(name string) { reconnected <- name }
	s.Register(m)
	s.Start(context.Background())
	defer s.Stop()

	h.ForceDrop("peer reset")
	m.MarkDisconnected("peer reset")
	s.Nudge()

	select {
	case name := <-reconnected:
		if name != "alpha" {
			t.Fatalf("reconnected %q, want alpha", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gateway was not reconnected")
	}
	if !m.Healthy() {
		t.Fatal("gateway unhealthy after reconnect")
	}
}

func TestTerminalAfterBudgetExhausted(t *testing.T) {
	m, h := simManaged("alpha")
	h.SetFailConnect(true)

	s := New(Options{CheckInterval: 10 * time.Millisecond, MaxReconnectAttempts: 3})
	terminal := make(chan string, 1)
	s.OnTerminal = func(name string) { terminal <- name }
	s.Register(m)
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never gave up")
	}
	if !s.Terminal("alpha") {
		t.Fatal("Terminal() = false after give-up")
	}

	// No further attempts once terminal.
	calls := h.ConnectCalls()
	time.Sleep(50 * time.Millisecond)
	if h.ConnectCalls() != calls {
		t.Fatalf("connect attempts continued after terminal: %d -> %d", calls, h.ConnectCalls())
	}
	if calls != 3 {
		t.Fatalf("connect attempts = %d, want 3", calls)
	}
}

func TestResetBudgetRearmsReconnect(t *testing.T) {
	m, h := simManaged("alpha")
	h.SetFailConnect(true)

	s := New(Options{CheckInterval: 10 * time.Millisecond, MaxReconnectAttempts: 2})
	s.Register(m)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return s.Terminal("alpha") }, "never terminal")

	h.SetFailConnect(false)
	s.ResetBudget("alpha")

	waitFor(t, 2*time.Second, m.Healthy, "gateway not reconnected after budget reset")
}

func TestSuccessResetsAttemptCounter(t *testing.T) {
	m, h := simManaged("alpha")
	h.SetFailConnect(true)

	s := New(Options{CheckInterval: 10 * time.Millisecond, MaxReconnectAttempts: 5})
	s.Register(m)
	s.Start(context.Background())
	defer s.Stop()

	// Let it burn a few attempts, then allow success.
	waitFor(t, 2*time.Second, func() bool { return h.ConnectCalls() >= 2 }, "no attempts made")
	h.SetFailConnect(false)
	waitFor(t, 2*time.Second, m.Healthy, "not reconnected")

	// Drop again: the budget must be fresh, so recovery happens again.
	h.ForceDrop("flap")
	m.MarkDisconnected("flap")
	s.Nudge()
	waitFor(t, 2*time.Second, m.Healthy, "second recovery failed, counter not reset")
	if s.Terminal("alpha") {
		t.Fatal("gateway marked terminal despite successful recoveries")
	}
}

func TestHeartbeatRefreshesStatus(t *testing.T) {
	m, _ := simManaged("alpha")
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := m.Status().LastHeartbeat

	s := New(Options{
		CheckInterval:     time.Hour, // isolate the heartbeat loop
		HeartbeatInterval: 10 * time.Millisecond,
	})
	s.Register(m)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return m.Status().LastHeartbeat.After(before)
	}, "heartbeat never refreshed")
}

func TestRestartAfterStop(t *testing.T) {
	m, h := simManaged("alpha")
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := New(Options{CheckInterval: 10 * time.Millisecond, MaxReconnectAttempts: 3})
	s.Register(m)
	s.Start(context.Background())
	s.Stop()

	// A stopped supervisor must not touch a dropped gateway.
	h.ForceDrop("peer reset")
	m.MarkDisconnected("peer reset")
	s.Nudge()
	calls := h.ConnectCalls()
	time.Sleep(50 * time.Millisecond)
	if h.ConnectCalls() != calls {
		t.Fatal("stopped supervisor attempted a reconnect")
	}

	// Restarted, it picks the gateway back up.
	s.Start(context.Background())
	defer s.Stop()
	s.Nudge()
	waitFor(t, 2*time.Second, m.Healthy, "gateway not reconnected after restart")
}

func TestStopIsBounded(t *testing.T) {
	s := New(Options{CheckInterval: 10 * time.Millisecond, StopTimeout: time.Second})
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Idempotent.
	s.Stop()
}
