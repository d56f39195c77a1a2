package matriz

import (
	"context"
	"testing"
	"time"
)

func TestHealthTrackerCounters(t *testing.T) {
	h := NewHealthTracker()
	ctx := context.Background()

	h.Record(ctx, "math", 5*time.Millisecond, true)
	h.Record(ctx, "math", 7*time.Millisecond, true)
	h.Record(ctx, "math", 9*time.Millisecond, false)

	snap := h.Snapshot()["math"]
	if snap.Successes != 2 || snap.Failures != 1 {
		t.Errorf("counters: %d/%d, want 2/1", snap.Successes, snap.Failures)
	}
	if snap.TotalDurationMS != 21 {
		t.Errorf("total duration %v ms, want 21", snap.TotalDurationMS)
	}
	if snap.Samples != 3 {
		t.Errorf("samples %d, want 3", snap.Samples)
	}
}

func TestHealthTrackerUnhealthy(t *testing.T) {
	h := NewHealthTracker()
	ctx := context.Background()

	if h.Unhealthy("unknown") {
		t.Error("unknown nodes are healthy")
	}

	h.Record(ctx, "facts", time.Millisecond, false)
	if !h.Unhealthy("facts") {
		t.Error("one failure against zero successes is unhealthy")
	}

	h.Record(ctx, "facts", time.Millisecond, true)
	if h.Unhealthy("facts") {
		t.Error("a tie is not unhealthy")
	}
}

func TestHealthTrackerP95(t *testing.T) {
	h := NewHealthTracker()
	ctx := context.Background()

	if _, ok := h.P95("math"); ok {
		t.Error("expected no p95 before any samples")
	}

	for i := 1; i <= 100; i++ {
		h.Record(ctx, "math", time.Duration(i)*time.Millisecond, true)
	}
	p95, ok := h.P95("math")
	if !ok {
		t.Fatal("expected a p95 after sampling")
	}
	// sorted[int(100*0.95)] over 1..100ms is the 96ms sample.
	if p95 != 96*time.Millisecond {
		t.Errorf("p95 = %v, want 96ms", p95)
	}
}

func TestHealthTrackerWindow(t *testing.T) {
	h := NewHealthTracker()
	ctx := context.Background()

	// Fill the window with slow samples, then overwrite it with fast ones.
	for i := 0; i < latencyWindow; i++ {
		h.Record(ctx, "math", 100*time.Millisecond, true)
	}
	for i := 0; i < latencyWindow; i++ {
		h.Record(ctx, "math", time.Millisecond, true)
	}

	p95, _ := h.P95("math")
	if p95 != time.Millisecond {
		t.Errorf("old samples should fall out of the window, p95 = %v", p95)
	}
	if snap := h.Snapshot()["math"]; snap.Samples != latencyWindow {
		t.Errorf("window holds %d samples, want %d", snap.Samples, latencyWindow)
	}
}

func TestPercentile95(t *testing.T) {
	if got := percentile95(nil); got != 0 {
		t.Errorf("empty samples should yield 0, got %v", got)
	}
	if got := percentile95([]time.Duration{42}); got != 42 {
		t.Errorf("single sample is its own p95, got %v", got)
	}
	// Unsorted input still sorts before indexing.
	got := percentile95([]time.Duration{30, 10, 20})
	if got != 30 {
		t.Errorf("p95 of {10,20,30} = %v, want 30", got)
	}
}
