package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
)

var collectorLog = logrus.WithField("component", "metrics_collector")

// Sample is one recorded observation for a gateway.
type Sample struct {
	Gateway   string
	Ts        time.Time
	Metric    domain.MetricType
	Value     float64 // latency ms, success rate %, error rate %, or 0/1 connection
	Success   bool
	ErrorType string
	Message   string
}

// Observer receives every new sample (push-style, used by the alert engine).
type Observer func(sample Sample)

// Stats is the derived view over one gateway's current window.
type Stats struct {
	Gateway       string  `json:"gateway"`
	SampleCount   int     `json:"sampleCount"`
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
	MinLatencyMs  float64 `json:"minLatencyMs"`
	MaxLatencyMs  float64 `json:"maxLatencyMs"`
	P95LatencyMs  float64 `json:"p95LatencyMs"`
	P99LatencyMs  float64 `json:"p99LatencyMs"`
	SuccessRate   float64 `json:"successRate"` // percent
	ErrorRate     float64 `json:"errorRate"`   // percent
	UptimePercent float64 `json:"uptimePercent"`
	OrdersTotal   int     `json:"ordersTotal"`
	ErrorsTotal   int     `json:"errorsTotal"`
}

// gatewayWindow holds one gateway's bounded sample window plus connection
// accounting. Each window has its own lock so gateways never contend.
type gatewayWindow struct {
	mu      sync.Mutex
	samples []Sample

	connected      bool
	connectedSince time.Time
	observedSince  time.Time
	connectedTotal time.Duration
}

// Collector keeps a bounded sliding window of samples per gateway and
// computes derived stats on demand.
type Collector struct {
	maxSamples int
	maxAge     time.Duration

	mu      sync.RWMutex
	windows map[string]*gatewayWindow

	obsMu     sync.RWMutex
	observers []Observer
}

// NewCollector builds a collector. maxSamples<=0 and maxAge<=0 pick the
// defaults (1000 samples, 5 minutes).
func NewCollector(maxSamples int, maxAge time.Duration) *Collector {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Collector{
		maxSamples: maxSamples,
		maxAge:     maxAge,
		windows:    make(map[string]*gatewayWindow),
	}
}

// AddObserver registers a push observer for new samples.
func (c *Collector) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.obsMu.Lock()
	c.observers = append(c.observers, obs)
	c.obsMu.Unlock()
}

func (c *Collector) window(gateway string) *gatewayWindow {
	c.mu.RLock()
	w, ok := c.windows[gateway]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok = c.windows[gateway]; ok {
		return w
	}
	w = &gatewayWindow{observedSince: time.Now()}
	c.windows[gateway] = w
	return w
}

func (w *gatewayWindow) append(sample Sample, maxSamples int, maxAge time.Duration) {
	cutoff := sample.Ts.Add(-maxAge)
	pruned := w.samples[:0]
	for _, s := range w.samples {
		if s.Ts.After(cutoff) {
			pruned = append(pruned, s)
		}
	}
	w.samples = pruned

	w.samples = append(w.samples, sample)
	if len(w.samples) > maxSamples {
		// Oldest evicted on overflow.
		w.samples = w.samples[len(w.samples)-maxSamples:]
	}
}

func (c *Collector) record(sample Sample) {
	w := c.window(sample.Gateway)
	w.mu.Lock()
	w.append(sample, c.maxSamples, c.maxAge)
	w.mu.Unlock()

	c.notify(sample)
}

// RecordLatency adds one latency observation in milliseconds.
func (c *Collector) RecordLatency(gateway string, latencyMs float64) {
	c.record(Sample{
		Gateway: gateway,
		Ts:      time.Now(),
		Metric:  domain.MetricLatency,
		Value:   latencyMs,
	})
}

// RecordOrderResult adds one order outcome. The sample value carries the
// resulting success rate over the window so rules evaluate the derived
// metric, not the raw boolean.
func (c *Collector) RecordOrderResult(gateway string, success bool) {
	w := c.window(gateway)
	now := time.Now()

	w.mu.Lock()
	w.append(Sample{
		Gateway: gateway,
		Ts:      now,
		Metric:  domain.MetricSuccessRate,
		Success: success,
	}, c.maxSamples, c.maxAge)
	rate := successRateLocked(w.samples)
	// Rewrite the just-appended sample's value with the derived rate.
	w.samples[len(w.samples)-1].Value = rate
	sample := w.samples[len(w.samples)-1]
	w.mu.Unlock()

	c.notify(sample)
}

// RecordError adds one error observation. The sample value carries the
// error rate (errors per total samples) over the window.
func (c *Collector) RecordError(gateway, errorType, message string) {
	w := c.window(gateway)
	now := time.Now()

	w.mu.Lock()
	w.append(Sample{
		Gateway:   gateway,
		Ts:        now,
		Metric:    domain.MetricErrorRate,
		ErrorType: errorType,
		Message:   message,
	}, c.maxSamples, c.maxAge)
	rate := errorRateLocked(w.samples)
	w.samples[len(w.samples)-1].Value = rate
	sample := w.samples[len(w.samples)-1]
	w.mu.Unlock()

	c.notify(sample)
}

// RecordConnectionStatus tracks connect/disconnect transitions for uptime
// and emits a 0/1 connection sample.
func (c *Collector) RecordConnectionStatus(gateway string, connected bool) {
	w := c.window(gateway)
	now := time.Now()

	w.mu.Lock()
	if connected && !w.connected {
		w.connected = true
		w.connectedSince = now
	} else if !connected && w.connected {
		w.connected = false
		w.connectedTotal += now.Sub(w.connectedSince)
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	w.append(Sample{
		Gateway: gateway,
		Ts:      now,
		Metric:  domain.MetricConnection,
		Value:   value,
	}, c.maxSamples, c.maxAge)
	sample := w.samples[len(w.samples)-1]
	w.mu.Unlock()

	c.notify(sample)
}

func (c *Collector) notify(sample Sample) {
	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()
	for _, obs := range observers {
		obs(sample)
	}
}

func successRateLocked(samples []Sample) float64 {
	total, ok := 0, 0
	for _, s := range samples {
		if s.Metric != domain.MetricSuccessRate {
			continue
		}
		total++
		if s.Success {
			ok++
		}
	}
	if total == 0 {
		return 100.0
	}
	return float64(ok) / float64(total) * 100.0
}

func errorRateLocked(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	errs := 0
	for _, s := range samples {
		if s.Metric == domain.MetricErrorRate {
			errs++
		}
	}
	return float64(errs) / float64(len(samples)) * 100.0
}

// percentile returns the value at index floor(n*p) of the sorted sample
// copy, clamped to the last element.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// GatewayStats computes derived stats over the gateway's current window.
func (c *Collector) GatewayStats(gateway string) Stats {
	w := c.window(gateway)
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	stats := Stats{Gateway: gateway, SampleCount: len(w.samples)}

	latencies := make([]float64, 0, len(w.samples))
	for _, s := range w.samples {
		switch s.Metric {
		case domain.MetricLatency:
			latencies = append(latencies, s.Value)
		case domain.MetricSuccessRate:
			stats.OrdersTotal++
		case domain.MetricErrorRate:
			stats.ErrorsTotal++
		}
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		sum := 0.0
		for _, v := range latencies {
			sum += v
		}
		stats.AvgLatencyMs = sum / float64(len(latencies))
		stats.MinLatencyMs = latencies[0]
		stats.MaxLatencyMs = latencies[len(latencies)-1]
		stats.P95LatencyMs = percentile(latencies, 0.95)
		stats.P99LatencyMs = percentile(latencies, 0.99)
	}

	stats.SuccessRate = successRateLocked(w.samples)
	stats.ErrorRate = errorRateLocked(w.samples)

	observed := now.Sub(w.observedSince)
	connected := w.connectedTotal
	if w.connected {
		connected += now.Sub(w.connectedSince)
	}
	if observed > 0 {
		stats.UptimePercent = float64(connected) / float64(observed) * 100.0
		if stats.UptimePercent > 100 {
			stats.UptimePercent = 100
		}
	}

	return stats
}

// AllStats returns stats for every known gateway.
func (c *Collector) AllStats() map[string]Stats {
	c.mu.RLock()
	names := make([]string, 0, len(c.windows))
	for name := range c.windows {
		names = append(names, name)
	}
	c.mu.RUnlock()

	out := make(map[string]Stats, len(names))
	for _, name := range names {
		out[name] = c.GatewayStats(name)
	}
	return out
}

// BestLatencyGateway returns the gateway with the lowest average latency
// among those with latency samples. ok=false when no gateway qualifies.
func (c *Collector) BestLatencyGateway() (string, bool) {
	best := ""
	bestAvg := 0.0
	for name, stats := range c.AllStats() {
		if stats.AvgLatencyMs <= 0 {
			continue
		}
		if best == "" || stats.AvgLatencyMs < bestAvg {
			best = name
			bestAvg = stats.AvgLatencyMs
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Reset drops a gateway's window (used when a gateway is re-initialized).
func (c *Collector) Reset(gateway string) {
	c.mu.Lock()
	delete(c.windows, gateway)
	c.mu.Unlock()
	collectorLog.Debugf("window reset: gateway=%s", gateway)
}
