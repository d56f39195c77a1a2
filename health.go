package matriz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
)

// latencyWindow is how many recent samples feed the p95 estimate.
const latencyWindow = 100

// HealthSnapshot is the externally visible health record for one node.
type HealthSnapshot struct {
	Successes       int     `json:"successes"`
	Failures        int     `json:"failures"`
	TotalDurationMS float64 `json:"total_duration_ms"`
	P95MS           float64 `json:"p95_ms"`
	Samples         int     `json:"samples"`
}

type nodeHealth struct {
	successes int
	failures  int
	total     time.Duration
	recent    []time.Duration
	p95       time.Duration
}

// HealthTracker keeps per-node rolling health: success/failure counters,
// cumulative duration, and a p95 over the last hundred latencies. All
// updates are mutex-guarded so recording from pipeline goroutines is safe.
type HealthTracker struct {
	mu      sync.Mutex
	records map[string]*nodeHealth
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{records: make(map[string]*nodeHealth)}
}

// Record folds one observation into the node's rolling record and
// recomputes its p95.
func (h *HealthTracker) Record(ctx context.Context, name string, d time.Duration, success bool) {
	h.mu.Lock()
	rec, ok := h.records[name]
	if !ok {
		rec = &nodeHealth{}
		h.records[name] = rec
	}
	if success {
		rec.successes++
	} else {
		rec.failures++
	}
	rec.total += d
	rec.recent = append(rec.recent, d)
	if len(rec.recent) > latencyWindow {
		rec.recent = rec.recent[len(rec.recent)-latencyWindow:]
	}
	rec.p95 = percentile95(rec.recent)
	successes, failures, p95 := rec.successes, rec.failures, rec.p95
	h.mu.Unlock()

	capitan.Emit(ctx, HealthUpdated,
		FieldNodeName.Field(name),
		FieldSuccesses.Field(successes),
		FieldFailures.Field(failures),
		FieldP95.Field(p95),
	)
}

// Unhealthy reports whether the node has failed more often than it has
// succeeded. Unknown nodes are healthy.
func (h *HealthTracker) Unhealthy(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[name]
	return ok && rec.failures > rec.successes
}

// P95 returns the node's current p95 latency, if it has any samples.
func (h *HealthTracker) P95(name string) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[name]
	if !ok || len(rec.recent) == 0 {
		return 0, false
	}
	return rec.p95, true
}

// Snapshot returns a read-only copy of every node's health record.
func (h *HealthTracker) Snapshot() map[string]HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]HealthSnapshot, len(h.records))
	for name, rec := range h.records {
		out[name] = HealthSnapshot{
			Successes:       rec.successes,
			Failures:        rec.failures,
			TotalDurationMS: float64(rec.total) / float64(time.Millisecond),
			P95MS:           float64(rec.p95) / float64(time.Millisecond),
			Samples:         len(rec.recent),
		}
	}
	return out
}

// percentile95 takes sorted[int(n*0.95)] over a copy of the samples.
func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
