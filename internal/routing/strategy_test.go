package routing

import "testing"

func view(cs ...Candidate) View { return View{Candidates: cs} }

func TestElectPrimaryPrefersDesignated(t *testing.T) {
	v := view(
		Candidate{Name: "a", Healthy: true, Priority: 1, IsPrimary: true},
		Candidate{Name: "b", Healthy: true, Priority: 9},
	)
	if got := ElectPrimary(v); got != "a" {
		t.Fatalf("primary = %q, want a", got)
	}
}

func TestElectPrimaryFallsBackByPriorityThenWeight(t *testing.T) {
	v := view(
		Candidate{Name: "a", Healthy: false, IsPrimary: true},
		Candidate{Name: "b", Healthy: true, Priority: 1, Weight: 5},
		Candidate{Name: "c", Healthy: true, Priority: 2, Weight: 1},
		Candidate{Name: "d", Healthy: true, Priority: 2, Weight: 3},
	)
	if got := ElectPrimary(v); got != "d" {
		t.Fatalf("primary = %q, want d", got)
	}

	// Equal priority and weight: registration order decides.
	v = view(
		Candidate{Name: "x", Healthy: true, Priority: 1, Weight: 1},
		Candidate{Name: "y", Healthy: true, Priority: 1, Weight: 1},
	)
	if got := ElectPrimary(v); got != "x" {
		t.Fatalf("primary = %q, want x", got)
	}
}

func TestElectPrimaryEmptyWhenAllDown(t *testing.T) {
	v := view(Candidate{Name: "a", IsPrimary: true}, Candidate{Name: "b"})
	if got := ElectPrimary(v); got != "" {
		t.Fatalf("primary = %q, want empty", got)
	}
}

func TestFailoverReclaim(t *testing.T) {
	s := New(ModeFailover)

	healthy := func(aUp, bUp bool) View {
		return view(
			Candidate{Name: "a", Healthy: aUp, Priority: 2, IsPrimary: true},
			Candidate{Name: "b", Healthy: bUp, Priority: 1},
		)
	}

	if got, ok := s.Select(healthy(true, true)); !ok || got != "a" {
		t.Fatalf("initial = %q", got)
	}
	if got, ok := s.Select(healthy(false, true)); !ok || got != "b" {
		t.Fatalf("after primary drop = %q, want b", got)
	}
	if got, ok := s.Select(healthy(true, true)); !ok || got != "a" {
		t.Fatalf("after primary recovery = %q, want a (reclaim)", got)
	}
	if _, ok := s.Select(healthy(false, false)); ok {
		t.Fatal("selection should fail with nothing healthy")
	}
}

func TestActiveStandbyRoutesPrimaryOnly(t *testing.T) {
	s := New(ModeActiveStandby)
	v := view(
		Candidate{Name: "a", Healthy: true, Priority: 2, IsPrimary: true},
		Candidate{Name: "b", Healthy: true, Priority: 1},
	)
	for i := 0; i < 5; i++ {
		if got, ok := s.Select(v); !ok || got != "a" {
			t.Fatalf("select %d = %q, want a", i, got)
		}
	}
}

func TestActiveStandbyNoneWhenPrimaryDown(t *testing.T) {
	s := New(ModeActiveStandby)

	// Standby stays idle while the designated primary is down.
	v := view(
		Candidate{Name: "a", Healthy: false, Priority: 2, IsPrimary: true},
		Candidate{Name: "b", Healthy: true, Priority: 1},
	)
	if got, ok := s.Select(v); ok {
		t.Fatalf("select = %q, want none with primary down", got)
	}

	// No designated primary: the priority-order winner stands in, but only
	// while it is itself healthy.
	v = view(
		Candidate{Name: "a", Healthy: true, Priority: 2},
		Candidate{Name: "b", Healthy: true, Priority: 1},
	)
	if got, ok := s.Select(v); !ok || got != "a" {
		t.Fatalf("select = %q, want a", got)
	}
	v = view(
		Candidate{Name: "a", Healthy: false, Priority: 2},
		Candidate{Name: "b", Healthy: true, Priority: 1},
	)
	if got, ok := s.Select(v); ok {
		t.Fatalf("select = %q, want none with standing primary down", got)
	}
}

func TestLoadBalanceFullCycleNoRepeat(t *testing.T) {
	s := New(ModeLoadBalance)
	v := view(
		Candidate{Name: "a", Healthy: true},
		Candidate{Name: "b", Healthy: true},
		Candidate{Name: "c", Healthy: true},
	)

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		name, ok := s.Select(v)
		if !ok {
			t.Fatal("selection failed")
		}
		seen[name]++
	}
	for _, c := range v.Candidates {
		if seen[c.Name] != 1 {
			t.Fatalf("cycle = %v, want each gateway once", seen)
		}
	}
}

func TestLoadBalanceSkipsUnhealthy(t *testing.T) {
	s := New(ModeLoadBalance)
	v := view(
		Candidate{Name: "a", Healthy: true},
		Candidate{Name: "b", Healthy: false},
		Candidate{Name: "c", Healthy: true},
	)
	for i := 0; i < 10; i++ {
		name, ok := s.Select(v)
		if !ok {
			t.Fatal("selection failed")
		}
		if name == "b" {
			t.Fatal("routed to unhealthy gateway")
		}
	}
}

func TestLoadBalanceShrinkingSet(t *testing.T) {
	s := New(ModeLoadBalance)
	big := view(
		Candidate{Name: "a", Healthy: true},
		Candidate{Name: "b", Healthy: true},
		Candidate{Name: "c", Healthy: true},
	)
	for i := 0; i < 5; i++ {
		s.Select(big)
	}
	small := view(Candidate{Name: "a", Healthy: true})
	if name, ok := s.Select(small); !ok || name != "a" {
		t.Fatalf("select after shrink = %q, want a", name)
	}
}

func TestActiveActiveFallsBackToFirstHealthy(t *testing.T) {
	s := New(ModeActiveActive)
	v := view(
		Candidate{Name: "a", Healthy: false, IsPrimary: true},
		Candidate{Name: "b", Healthy: true},
		Candidate{Name: "c", Healthy: true},
	)
	if got, ok := s.Select(v); !ok || got != "b" {
		t.Fatalf("select = %q, want b", got)
	}
}

func TestNewDefaultsToActiveActive(t *testing.T) {
	if s := New("bogus"); s.Name() != ModeActiveActive {
		t.Fatalf("mode = %s", s.Name())
	}
}
