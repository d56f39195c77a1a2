package matriz

import (
	"context"
	"testing"
)

func newTestCore() *Core {
	return NewCore("test", []string{"testing"}, "tenant-test")
}

func TestNewNodeProducesValidNodes(t *testing.T) {
	core := newTestCore()

	for _, typ := range []NodeType{NodeIntent, NodeDecision, NodeComputation, NodeMemory, NodeValidation, NodeReflect} {
		node, err := core.NewNode(context.Background(), NodeSpec{
			Type:  typ,
			State: NodeState{Confidence: 0.8, Salience: 0.5},
		})
		if err != nil {
			t.Fatalf("unexpected error for type %q: %v", typ, err)
		}
		if !core.ValidateNode(node) {
			t.Errorf("node of type %q failed validation", typ)
		}
		if node.ID == "" || node.Version != NodeVersion || node.SchemaRef != SchemaRef {
			t.Errorf("node of type %q missing identity fields: %+v", typ, node)
		}
	}
}

func TestNewNodeRejectsEveryInvalidType(t *testing.T) {
	core := newTestCore()

	for _, typ := range []NodeType{"", "COMPUTE", "sensory_img", "EMOTIONAL", "INTENTION", "random"} {
		_, err := core.NewNode(context.Background(), NodeSpec{
			Type:  typ,
			State: NodeState{Confidence: 0.8, Salience: 0.5},
		})
		if err == nil {
			t.Errorf("expected error for type %q", typ)
		}
	}
}

func TestNewNodeDataOverwritesState(t *testing.T) {
	core := newTestCore()

	node, err := core.NewNode(context.Background(), NodeSpec{
		Type:  NodeComputation,
		State: NodeState{Confidence: 0.8, Salience: 0.5},
		Data:  map[string]any{"confidence": 0.2, "expression": "1+1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c, _ := stateFloat(node.State, "confidence"); c != 0.2 {
		t.Errorf("expected additional data to overwrite confidence, got %v", c)
	}
	if node.State["expression"] != "1+1" {
		t.Error("expected additional data to be merged into state")
	}
}

func TestNewNodeZeroStateCarriesRequiredKeys(t *testing.T) {
	core := newTestCore()

	// The typed state always flattens confidence and salience, so even a
	// zero-value spec satisfies the presence invariant.
	node, err := core.NewNode(context.Background(), NodeSpec{Type: NodeComputation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.State["confidence"]; !ok {
		t.Error("expected confidence key in state")
	}
	if _, ok := node.State["salience"]; !ok {
		t.Error("expected salience key in state")
	}
}

func TestValidateNodeRejectsOutOfRangeSignals(t *testing.T) {
	core := newTestCore()

	// Construction does not re-check ranges after the data merge; validation
	// must catch what construction let through.
	node, err := core.NewNode(context.Background(), NodeSpec{
		Type:  NodeComputation,
		State: NodeState{Confidence: 0.8, Salience: 0.5},
		Data:  map[string]any{"confidence": 1.7},
	})
	if err != nil {
		t.Fatalf("construction should not range-check: %v", err)
	}
	if core.ValidateNode(node) {
		t.Error("validation should reject confidence outside [0,1]")
	}

	node2, err := core.NewNode(context.Background(), NodeSpec{
		Type:  NodeComputation,
		State: NodeState{Confidence: 0.8, Salience: 0.5},
		Data:  map[string]any{"salience": -0.1},
	})
	if err != nil {
		t.Fatalf("construction should not range-check: %v", err)
	}
	if core.ValidateNode(node2) {
		t.Error("validation should reject salience outside [0,1]")
	}
}

func TestValidateNodeNil(t *testing.T) {
	if newTestCore().ValidateNode(nil) {
		t.Error("nil node should not validate")
	}
}

func TestDeterministicHashStable(t *testing.T) {
	core := newTestCore()

	a := Input{"query": "2+2", "depth": 3, "flags": map[string]any{"x": true, "y": false}}
	b := Input{"flags": map[string]any{"y": false, "x": true}, "depth": 3, "query": "2+2"}

	ha, err := core.DeterministicHash(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb, err := core.DeterministicHash(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ha != hb {
		t.Errorf("value-equal inputs hashed differently: %s vs %s", ha, hb)
	}
}

func TestDeterministicHashVariesByNodeName(t *testing.T) {
	a := NewCore("math", nil, "tenant-test")
	b := NewCore("facts", nil, "tenant-test")

	input := Input{"query": "2+2"}
	ha, _ := a.DeterministicHash(input)
	hb, _ := b.DeterministicHash(input)
	if ha == hb {
		t.Error("different node names should produce different hashes")
	}
}

func TestTraceIsDefensiveCopy(t *testing.T) {
	core := newTestCore()
	_, err := core.NewNode(context.Background(), NodeSpec{
		Type:  NodeMemory,
		State: NodeState{Confidence: 0.8, Salience: 0.5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trace := core.Trace()
	if len(trace) != 1 {
		t.Fatalf("expected 1 node in trace, got %d", len(trace))
	}
	trace[0] = nil
	if core.Trace()[0] == nil {
		t.Error("mutating the returned trace should not affect the history")
	}
}

func TestHistoryLimit(t *testing.T) {
	core := newTestCore().WithHistoryLimit(3)

	var last *Node
	for i := 0; i < 5; i++ {
		n, err := core.NewNode(context.Background(), NodeSpec{
			Type:  NodeMemory,
			State: NodeState{Confidence: 0.8, Salience: 0.5},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = n
	}

	trace := core.Trace()
	if len(trace) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(trace))
	}
	if trace[2].ID != last.ID {
		t.Error("expected the most recent node to be retained")
	}
}
