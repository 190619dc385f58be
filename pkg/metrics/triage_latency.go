// Package metrics keeps in-process latency percentiles and triage counters.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Latency tracker (ring buffer, P50/P95/P99)
// =============================================================================

type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
	count   int64
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{samples: make([]time.Duration, windowSize)}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.samples[lt.next] = d
	lt.next = (lt.next + 1) % len(lt.samples)
	if lt.next == 0 {
		lt.full = true
	}
	lt.count++
}

// Stats computes percentiles over the current window.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	n := lt.next
	if lt.full {
		n = len(lt.samples)
	}
	window := make([]time.Duration, n)
	copy(window, lt.samples[:n])
	count := lt.count
	lt.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}

	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	var sum time.Duration
	for _, v := range window {
		sum += v
	}

	pct := func(p float64) time.Duration {
		return window[int(float64(n-1)*p)]
	}

	return LatencyStats{
		Count:   count,
		Min:     window[0],
		Max:     window[n-1],
		Avg:     sum / time.Duration(n),
		P50:     pct(0.50),
		P95:     pct(0.95),
		P99:     pct(0.99),
		Samples: n,
	}
}

type LatencyStats struct {
	Count   int64         `json:"count"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Avg     time.Duration `json:"avg"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Samples int           `json:"samples"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (s LatencyStats) ToMap() map[string]any {
	return map[string]any{
		"count":       s.Count,
		"min_ms":      ms(s.Min),
		"max_ms":      ms(s.Max),
		"avg_ms":      ms(s.Avg),
		"p50_ms":      ms(s.P50),
		"p95_ms":      ms(s.P95),
		"p99_ms":      ms(s.P99),
		"sample_size": s.Samples,
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry groups latency trackers per operation and named counters.
type Registry struct {
	mu       sync.RWMutex
	window   int
	trackers map[string]*LatencyTracker
	counters map[string]int64
}

func NewRegistry(windowSize int) *Registry {
	return &Registry{
		window:   windowSize,
		trackers: make(map[string]*LatencyTracker),
		counters: make(map[string]int64),
	}
}

func (r *Registry) tracker(name string) *LatencyTracker {
	r.mu.RLock()
	t, ok := r.trackers[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[name]; !ok {
		t = NewLatencyTracker(r.window)
		r.trackers[name] = t
	}
	return t
}

func (r *Registry) RecordLatency(name string, d time.Duration) {
	r.tracker(name).Record(d)
}

// Inc bumps a counter such as "severity.high" or "escalations".
func (r *Registry) Inc(name string) {
	r.mu.Lock()
	r.counters[name]++
	r.mu.Unlock()
}

func (r *Registry) Counter(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// Snapshot renders every tracker and counter for the /metrics endpoint.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	counters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	r.mu.RUnlock()

	latency := make(map[string]any, len(names))
	for _, name := range names {
		latency[name] = r.tracker(name).Stats().ToMap()
	}

	return map[string]any{
		"latency":  latency,
		"counters": counters,
	}
}

var (
	global     *Registry
	globalOnce sync.Once
)

func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry(1000)
	})
	return global
}
