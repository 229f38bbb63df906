package routing

import (
	"sort"
	"sync/atomic"
)

// Mode names a routing strategy variant.
type Mode string

const (
	ModeActiveActive  Mode = "active_active"
	ModeActiveStandby Mode = "active_standby"
	ModeLoadBalance   Mode = "load_balance"
	ModeFailover      Mode = "failover"
)

// Candidate is one gateway as the router sees it. Candidates arrive in
// stable registration order.
type Candidate struct {
	Name      string
	Healthy   bool
	Priority  int
	Weight    int
	IsPrimary bool // from the descriptor, not the election
}

// View is the router's input: the candidate list in registration order.
type View struct {
	Candidates []Candidate
}

func (v View) healthy() []Candidate {
	out := make([]Candidate, 0, len(v.Candidates))
	for _, c := range v.Candidates {
		if c.Healthy {
			out = append(out, c)
		}
	}
	return out
}

// ElectPrimary resolves the effective primary: the descriptor-designated
// primary when healthy (the original reclaims its role as soon as it
// recovers), otherwise the best healthy candidate by (priority desc,
// weight desc, registration order). Empty when nothing is healthy.
func ElectPrimary(v View) string {
	for _, c := range v.Candidates {
		if c.IsPrimary && c.Healthy {
			return c.Name
		}
	}

	healthy := v.healthy()
	if len(healthy) == 0 {
		return ""
	}
	sort.SliceStable(healthy, func(i, j int) bool {
		if healthy[i].Priority != healthy[j].Priority {
			return healthy[i].Priority > healthy[j].Priority
		}
		return healthy[i].Weight > healthy[j].Weight
	})
	return healthy[0].Name
}

// Strategy selects a gateway name from the current view. ok=false means the
// healthy set is empty; selection never fails harder than that.
type Strategy interface {
	Name() Mode
	Select(v View) (gateway string, ok bool)
}

// New returns the strategy for a mode, defaulting to ActiveActive for
// unknown modes.
func New(mode Mode) Strategy {
	switch mode {
	case ModeActiveStandby:
		return &ActiveStandby{}
	case ModeLoadBalance:
		return &LoadBalance{}
	case ModeFailover:
		return &Failover{}
	default:
		return &ActiveActive{}
	}
}

// ActiveActive prefers the elected primary, falling back to the first
// healthy gateway in registration order.
type ActiveActive struct{}

func (s *ActiveActive) Name() Mode { return ModeActiveActive }

func (s *ActiveActive) Select(v View) (string, bool) {
	for _, c := range v.Candidates {
		if c.IsPrimary && c.Healthy {
			return c.Name, true
		}
	}
	healthy := v.healthy()
	if len(healthy) == 0 {
		return "", false
	}
	return healthy[0].Name, true
}

// ActiveStandby routes to the designated primary only: standbys never take
// traffic on their own, a down primary means no selection. Without a
// designated primary the standing primary is the best candidate by
// (priority desc, weight desc, registration order), still gated on its own
// health.
type ActiveStandby struct{}

func (s *ActiveStandby) Name() Mode { return ModeActiveStandby }

func (s *ActiveStandby) Select(v View) (string, bool) {
	for _, c := range v.Candidates {
		if c.IsPrimary {
			if c.Healthy {
				return c.Name, true
			}
			return "", false
		}
	}

	if len(v.Candidates) == 0 {
		return "", false
	}
	all := make([]Candidate, len(v.Candidates))
	copy(all, v.Candidates)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].Weight > all[j].Weight
	})
	if !all[0].Healthy {
		return "", false
	}
	return all[0].Name, true
}

// LoadBalance is round-robin over the currently healthy set. The cursor is
// persistent and taken modulo the current healthy-set size on each call, so
// a shrinking or growing set never indexes out of range. Over a stable set
// no gateway repeats before every other healthy gateway was selected once.
type LoadBalance struct {
	cursor atomic.Uint64
}

func (s *LoadBalance) Name() Mode { return ModeLoadBalance }

func (s *LoadBalance) Select(v View) (string, bool) {
	healthy := v.healthy()
	if len(healthy) == 0 {
		return "", false
	}
	idx := (s.cursor.Add(1) - 1) % uint64(len(healthy))
	return healthy[idx].Name, true
}

// Failover routes to the elected primary: the designated primary while
// healthy, else the best healthy candidate by priority/weight.
type Failover struct{}

func (s *Failover) Name() Mode { return ModeFailover }

func (s *Failover) Select(v View) (string, bool) {
	primary := ElectPrimary(v)
	if primary == "" {
		return "", false
	}
	return primary, true
}
