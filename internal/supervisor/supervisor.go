// Package supervisor keeps gateway connections alive: it reconnects dropped
// gateways with a retry budget and refreshes liveness through periodic pings.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/gateway"
	"github.com/gatelink/gogate/pkg/sigchan"
	"github.com/gatelink/gogate/pkg/syncgroup"
)

var log = logrus.WithField("component", "health_supervisor")

// Options tunes the supervisor loops. Zero values pick the defaults.
type Options struct {
	CheckInterval        time.Duration // reconnect sweep period (default 5s)
	HeartbeatInterval    time.Duration // ping period (default 15s)
	MaxReconnectAttempts int           // consecutive failures before terminal (default 5)
	StopTimeout          time.Duration // bound on Stop (default 5s)
}

func (o *Options) defaults() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = 5 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
}

type target struct {
	managed  *gateway.Managed
	attempts int
	terminal bool
}

// Supervisor runs one reconnect sweep loop plus one heartbeat loop over all
// registered gateways.
type Supervisor struct {
	opts Options

	mu      sync.Mutex
	targets map[string]*target
	running bool
	cancel  context.CancelFunc

	group *syncgroup.SyncGroup
	nudge *sigchan.Chan

	// OnReconnected / OnTerminal are optional hooks invoked outside the
	// supervisor lock. Set them before Start.
	OnReconnected func(name string)
	OnTerminal    func(name string)
}

func New(opts Options) *Supervisor {
	opts.defaults()
	return &Supervisor{
		opts:    opts,
		targets: make(map[string]*target),
		group:   syncgroup.NewSyncGroup(),
		nudge:   sigchan.New(1),
	}
}

// Register adds a gateway under supervision. Safe before or after Start.
func (s *Supervisor) Register(m *gateway.Managed) {
	s.mu.Lock()
	s.targets[m.Name()] = &target{managed: m}
	s.mu.Unlock()
}

// Nudge asks for an immediate reconnect sweep (used after an adapter
// reports a drop, so recovery does not wait out the tick).
func (s *Supervisor) Nudge() {
	s.nudge.Emit()
}

// ResetBudget clears a gateway's failure budget and terminal flag, e.g.
// after an operator-triggered manual reconnect.
func (s *Supervisor) ResetBudget(name string) {
	s.mu.Lock()
	if t, ok := s.targets[name]; ok {
		t.attempts = 0
		t.terminal = false
	}
	s.mu.Unlock()
	s.nudge.Emit()
}

// Terminal reports whether the supervisor has given up on a gateway.
func (s *Supervisor) Terminal(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[name]
	return ok && t.terminal
}

// Start launches the loops. Idempotent.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.group.Add(func() { s.checkLoop(loopCtx) })
	s.group.Add(func() { s.heartbeatLoop(loopCtx) })
	s.group.Run()
	log.Infof("supervisor started: check=%s heartbeat=%s maxAttempts=%d",
		s.opts.CheckInterval, s.opts.HeartbeatInterval, s.opts.MaxReconnectAttempts)
}

// Stop cancels the loops and waits for them, bounded by StopTimeout. A
// stopped supervisor can be started again; the retry budgets survive.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.group.WaitAndClear()
		close(done)
	}()
	select {
	case <-done:
		log.Info("supervisor stopped")
	case <-time.After(s.opts.StopTimeout):
		log.Warnf("supervisor stop timed out after %s", s.opts.StopTimeout)
	}
}

func (s *Supervisor) checkLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.nudge.C():
			s.sweep(ctx)
		}
	}
}

// sweep reconnects every eligible disconnected gateway. Attempts within one
// process are sequential per sweep; the budget counts consecutive failures
// and resets on any success.
func (s *Supervisor) sweep(ctx context.Context) {
	s.mu.Lock()
	candidates := make([]*target, 0, len(s.targets))
	for _, t := range s.targets {
		if !t.managed.Descriptor().AutoReconnect || t.terminal || t.managed.Healthy() {
			continue
		}
		candidates = append(candidates, t)
	}
	s.mu.Unlock()

	for _, t := range candidates {
		if ctx.Err() != nil {
			return
		}
		name := t.managed.Name()
		err := t.managed.Connect(ctx)

		s.mu.Lock()
		if err != nil {
			t.attempts++
			attempts := t.attempts
			gaveUp := attempts >= s.opts.MaxReconnectAttempts
			t.terminal = gaveUp
			s.mu.Unlock()

			log.Warnf("reconnect failed: gateway=%s attempt=%d/%d err=%v",
				name, attempts, s.opts.MaxReconnectAttempts, err)
			if gaveUp {
				log.Errorf("reconnect budget exhausted, giving up: gateway=%s", name)
				if s.OnTerminal != nil {
					s.OnTerminal(name)
				}
			}
			continue
		}
		t.attempts = 0
		s.mu.Unlock()

		log.Infof("gateway reconnected: name=%s", name)
		if s.OnReconnected != nil {
			s.OnReconnected(name)
		}
	}
}

func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.heartbeat(ctx)
		}
	}
}

func (s *Supervisor) heartbeat(ctx context.Context) {
	s.mu.Lock()
	connected := make([]*gateway.Managed, 0, len(s.targets))
	for _, t := range s.targets {
		if t.managed.Healthy() {
			connected = append(connected, t.managed)
		}
	}
	s.mu.Unlock()

	for _, m := range connected {
		if ctx.Err() != nil {
			return
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := m.Ping(pingCtx); err != nil {
			log.Warnf("heartbeat failed: gateway=%s err=%v", m.Name(), err)
		}
		cancel()
	}
}
