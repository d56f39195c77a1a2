package matriz

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestOrchestrator() *Orchestrator {
	o := NewOrchestrator("tenant-test")
	o.RegisterNode("math", NewMathNode("tenant-test"))
	o.RegisterNode("facts", NewFactNode("tenant-test"))
	o.RegisterNode("validator", NewValidatorNode("tenant-test"))
	return o
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"2 + 2", IntentMathematical},
		{"10/5", IntentMathematical},
		{"What is the capital of France?", IntentQuestion},
		{"I see a dog", IntentPerception},
		{"tell me something", IntentGeneral},
		// Operators win even without digits, and before the question mark.
		{"pi * e", IntentMathematical},
		{"is a no-go an obstacle?", IntentMathematical},
	}
	for _, tc := range cases {
		if got := classifyIntent(tc.text); got != tc.want {
			t.Errorf("classifyIntent(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestProcessQueryMath(t *testing.T) {
	o := newTestOrchestrator()

	resp, err := o.ProcessQuery(context.Background(), "2 + 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "4" {
		t.Errorf("expected answer 4, got %q", resp.Answer)
	}
	// intent, decision, computation, reflection
	if len(resp.Nodes) != 4 {
		t.Fatalf("expected 4 audit nodes, got %d", len(resp.Nodes))
	}
	wantTypes := []NodeType{NodeIntent, NodeDecision, NodeComputation, NodeReflect}
	for i, n := range resp.Nodes {
		if n.Type != wantTypes[i] {
			t.Errorf("node %d: type %s, want %s", i, n.Type, wantTypes[i])
		}
	}
	if resp.Trace == nil || resp.Trace.NodeName != "math" {
		t.Error("expected a trace recorded against the math node")
	}
	if resp.Trace.ValidationResult == nil || !*resp.Trace.ValidationResult {
		t.Error("expected the validator to accept the output")
	}
	if len(resp.ReasoningChain) == 0 {
		t.Error("expected a reasoning chain")
	}
}

func TestProcessQueryFacts(t *testing.T) {
	o := newTestOrchestrator()

	resp, err := o.ProcessQuery(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Answer, "Paris") {
		t.Errorf("expected Paris in answer, got %q", resp.Answer)
	}
	if resp.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 on exact match, got %v", resp.Confidence)
	}
	if resp.Nodes[2].Type != NodeMemory {
		t.Errorf("expected a MEMORY processing node, got %s", resp.Nodes[2].Type)
	}
}

func TestProcessQueryUnknownFact(t *testing.T) {
	o := newTestOrchestrator()

	resp, err := o.ProcessQuery(context.Background(), "tell me about frobnication")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != UnknownAnswer {
		t.Errorf("expected the unknown answer, got %q", resp.Answer)
	}
	if resp.Confidence != 0.1 {
		t.Errorf("expected confidence 0.1, got %v", resp.Confidence)
	}
}

func TestProcessQueryHyphenatedProseRoutesToMath(t *testing.T) {
	o := newTestOrchestrator()

	// Operator-bearing prose classifies as mathematical before the question
	// mark is considered; the math node then records a structured failure.
	resp, err := o.ProcessQuery(context.Background(), "is a no-go an obstacle?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Trace.NodeName != "math" {
		t.Errorf("expected routing to math, got %q", resp.Trace.NodeName)
	}
	if resp.Confidence != 0.1 {
		t.Errorf("expected the low-confidence failure path, got %v", resp.Confidence)
	}
	if !strings.Contains(resp.Answer, "could not evaluate") {
		t.Errorf("expected the refusal answer, got %q", resp.Answer)
	}
}

func TestProcessQueryUnregisteredTarget(t *testing.T) {
	o := newTestOrchestrator()

	// Perception routes to "vision", which is never registered.
	resp, err := o.ProcessQuery(context.Background(), "I see a dog")
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if resp == nil || resp.Error == "" {
		t.Fatal("failure response should carry the error")
	}
	// The pipeline stopped after decision: intent and decision nodes remain.
	if len(resp.Nodes) != 2 {
		t.Errorf("expected 2 partial nodes, got %d", len(resp.Nodes))
	}
}

func TestProcessQueryIdempotentRouting(t *testing.T) {
	o := newTestOrchestrator()

	first, err := o.ProcessQuery(context.Background(), "3 * 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := o.ProcessQuery(context.Background(), "3 * 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Answer != second.Answer || first.Confidence != second.Confidence {
		t.Errorf("same query should produce the same answer: %q/%v vs %q/%v",
			first.Answer, first.Confidence, second.Answer, second.Confidence)
	}
	if first.Trace.NodeName != second.Trace.NodeName {
		t.Error("same query should route to the same node")
	}
}

func TestProcessQueryWithoutValidator(t *testing.T) {
	o := NewOrchestrator("tenant-test")
	o.RegisterNode("math", NewMathNode("tenant-test"))

	resp, err := o.ProcessQuery(context.Background(), "2 + 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// No validator: no reflection node, no validation verdict.
	if len(resp.Nodes) != 3 {
		t.Errorf("expected 3 audit nodes without a validator, got %d", len(resp.Nodes))
	}
	if resp.Trace.ValidationResult != nil {
		t.Error("expected no validation verdict without a validator")
	}
}

func TestCausalChainWalk(t *testing.T) {
	o := newTestOrchestrator()

	resp, err := o.ProcessQuery(context.Background(), "2 + 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The decision node points back at the intent node.
	decision := resp.Nodes[1]
	chain := o.CausalChain(decision.ID)
	if len(chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(chain))
	}
	if chain[0].ID != decision.ID || chain[1].Type != NodeIntent {
		t.Error("chain should walk decision back to intent")
	}

	// The intent node has no trigger parent: the chain is just itself.
	intent := resp.Nodes[0]
	if chain := o.CausalChain(intent.ID); len(chain) != 1 {
		t.Errorf("expected a single-element chain, got %d", len(chain))
	}

	// Unknown IDs yield nothing.
	if chain := o.CausalChain("no-such-node"); chain != nil {
		t.Errorf("expected nil chain for unknown id, got %v", chain)
	}
}

func TestTracesAccumulate(t *testing.T) {
	o := newTestOrchestrator()

	for _, q := range []string{"1 + 1", "2 + 2", "What is the capital of Japan?"} {
		if _, err := o.ProcessQuery(context.Background(), q); err != nil {
			t.Fatalf("unexpected error for %q: %v", q, err)
		}
	}
	traces := o.Traces()
	if len(traces) != 3 {
		t.Fatalf("expected 3 traces, got %d", len(traces))
	}
	if traces[2].NodeName != "facts" {
		t.Errorf("expected last trace against facts, got %q", traces[2].NodeName)
	}

	// The returned slice is a copy.
	traces[0].NodeName = "mutated"
	if o.Traces()[0].NodeName == "mutated" {
		t.Error("Traces must return a defensive copy")
	}
}
