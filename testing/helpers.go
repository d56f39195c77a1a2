// Package matriztest provides test utilities for matriz.
package matriztest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobz-io/zyn"

	"github.com/matriz-ai/matriz"
)

// MockArchive implements matriz.Archive for testing without a database.
type MockArchive struct {
	mu     sync.RWMutex
	nodes  []*matriz.Node
	traces []*matriz.ExecutionTrace

	// SaveNodeErr, when set, makes every SaveNode call fail.
	SaveNodeErr error
}

// NewMockArchive creates a new in-memory mock for matriz.Archive.
func NewMockArchive() *MockArchive {
	return &MockArchive{}
}

// SaveNode records the node in memory.
func (m *MockArchive) SaveNode(_ context.Context, node *matriz.Node) error {
	if m.SaveNodeErr != nil {
		return m.SaveNodeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, node)
	return nil
}

// SaveTrace records the trace in memory.
func (m *MockArchive) SaveTrace(_ context.Context, trace *matriz.ExecutionTrace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces = append(m.traces, trace)
	return nil
}

// NodesByTrace returns the recorded nodes carrying the given trace ID, in
// insertion order.
func (m *MockArchive) NodesByTrace(_ context.Context, traceID string) ([]*matriz.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*matriz.Node
	for _, n := range m.nodes {
		if n.Provenance.TraceID == traceID {
			out = append(out, n)
		}
	}
	return out, nil
}

// NodesByTenant returns the tenant's recorded nodes, newest first.
func (m *MockArchive) NodesByTenant(_ context.Context, tenant string, limit int) ([]*matriz.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*matriz.Node
	for i := len(m.nodes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.nodes[i].Provenance.Tenant == tenant {
			out = append(out, m.nodes[i])
		}
	}
	return out, nil
}

// DeleteBefore drops recorded nodes created before the cutoff.
func (m *MockArchive) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*matriz.Node
	var removed int64
	for _, n := range m.nodes {
		if n.Timestamps.CreatedTS < cutoff.UnixMilli() {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	m.nodes = kept
	return removed, nil
}

// Nodes returns a copy of everything saved so far.
func (m *MockArchive) Nodes() []*matriz.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*matriz.Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Traces returns a copy of every saved trace.
func (m *MockArchive) Traces() []*matriz.ExecutionTrace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*matriz.ExecutionTrace, len(m.traces))
	copy(out, m.traces)
	return out
}

// MockProvider implements matriz.Provider with a canned Transform answer.
type MockProvider struct {
	// Answer is what every Transform call returns.
	Answer string

	// Err, when set, makes every call fail.
	Err error

	mu    sync.Mutex
	calls int
}

// NewMockProvider creates a provider answering every call with answer.
func NewMockProvider(answer string) *MockProvider {
	return &MockProvider{Answer: answer}
}

// Call returns the canned Transform response.
func (m *MockProvider) Call(_ context.Context, messages []zyn.Message, _ float32) (*zyn.ProviderResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	return &zyn.ProviderResponse{
		Content: fmt.Sprintf(`{"output": "%s", "confidence": 0.9, "changes": [], "reasoning": ["Canned test answer"]}`, m.Answer),
		Usage: zyn.TokenUsage{
			Prompt:     10,
			Completion: 10,
			Total:      20,
		},
	}, nil
}

// Name identifies the mock provider.
func (m *MockProvider) Name() string {
	return "mock-provider"
}

// Calls returns how many times the provider was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
