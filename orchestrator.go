package matriz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// ErrUnknownNode is returned when routing selects a node name that was never
// registered.
var ErrUnknownNode = errors.New("no node registered under that name")

// Intent is the coarse query classification driving node selection.
type Intent string

const (
	IntentMathematical Intent = "mathematical"
	IntentQuestion     Intent = "question"
	IntentPerception   Intent = "perception"
	IntentGeneral      Intent = "general"
)

// classifyIntent buckets a query by trivial substring checks. Arithmetic
// operators win over everything, even inside hyphenated prose; a question
// mark marks a question; the perception heuristic is as shallow as it looks.
func classifyIntent(text string) Intent {
	if strings.ContainsAny(text, "+-*/^") {
		return IntentMathematical
	}
	if strings.Contains(text, "?") {
		return IntentQuestion
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "dog") || strings.Contains(lower, "see") {
		return IntentPerception
	}
	return IntentGeneral
}

// routeIntent maps an intent to a registry node name. The "vision" target is
// never registered by default wiring; perception queries hit the
// unregistered-node error path until product decides what vision should be.
func routeIntent(intent Intent) string {
	switch intent {
	case IntentMathematical:
		return "math"
	case IntentQuestion:
		return "facts"
	case IntentPerception:
		return "vision"
	default:
		return "facts"
	}
}

// Orchestrator drives one query synchronously through the fixed pipeline:
// intent classification, node selection, processing, optional validation,
// optional reflection. Every step is recorded as an audit node and indexed
// in the causal graph.
//
// Failures return a structured error alongside whatever partial response was
// assembled; node-level errors are not propagated as panics.
type Orchestrator struct {
	core  *Core
	graph *Graph

	mu     sync.RWMutex
	nodes  map[string]CognitiveNode
	traces []ExecutionTrace
}

// NewOrchestrator creates a synchronous orchestrator for the given tenant.
func NewOrchestrator(tenant string) *Orchestrator {
	return &Orchestrator{
		core:  NewCore("orchestrator", []string{"intent-routing", "pipeline-orchestration"}, tenant),
		graph: NewGraph(),
		nodes: make(map[string]CognitiveNode),
	}
}

// RegisterNode stores a node under name. Last write wins; there is no
// uniqueness check beyond overwrite.
func (o *Orchestrator) RegisterNode(name string, node CognitiveNode) {
	o.mu.Lock()
	o.nodes[name] = node
	o.mu.Unlock()

	capitan.Emit(context.Background(), NodeRegistered,
		FieldNodeName.Field(name),
	)
}

// node looks up a registered node by name.
func (o *Orchestrator) node(name string) (CognitiveNode, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n, ok := o.nodes[name]
	return n, ok
}

// Graph returns the causal graph built across this orchestrator's lifetime.
func (o *Orchestrator) Graph() *Graph {
	return o.graph
}

// CausalChain walks trigger back-pointers from the given node ID.
func (o *Orchestrator) CausalChain(id string) []*Node {
	return o.graph.CausalChain(id)
}

// Traces returns a copy of the append-only execution trace log.
func (o *Orchestrator) Traces() []ExecutionTrace {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ExecutionTrace, len(o.traces))
	copy(out, o.traces)
	return out
}

// ProcessQuery routes text through the pipeline and returns the assembled
// response. On failure the returned response carries the error and whatever
// nodes were created before the pipeline stopped.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string) (*Response, error) {
	traceID := uuid.New().String()
	start := time.Now()

	capitan.Emit(ctx, QueryReceived,
		FieldQuery.Field(text),
		FieldTraceID.Field(traceID),
	)

	var created []*Node
	record := func(n *Node) {
		created = append(created, n)
		o.graph.Add(n)
	}

	// Stage 1: intent classification.
	intent := classifyIntent(text)
	intentNode, err := o.core.NewNode(ctx, NodeSpec{
		Type:    NodeIntent,
		State:   NodeState{Confidence: 0.9, Salience: 0.6},
		TraceID: traceID,
		Triggers: []NodeTrigger{
			NewTrigger("query_received", "", "intent classified"),
		},
		Data: map[string]any{"query": text, "intent": string(intent)},
	})
	if err != nil {
		return o.fail(ctx, traceID, created, err)
	}
	record(intentNode)

	// Stage 2: decision.
	target := routeIntent(intent)
	decisionNode, err := o.core.NewNode(ctx, NodeSpec{
		Type:    NodeDecision,
		State:   NodeState{Confidence: 0.85, Salience: 0.6},
		TraceID: traceID,
		Triggers: []NodeTrigger{
			NewTrigger("intent_classified", intentNode.ID, "node selected"),
		},
		Data: map[string]any{"intent": string(intent), "selected_node": target},
	})
	if err != nil {
		return o.fail(ctx, traceID, created, err)
	}
	record(decisionNode)

	reasoning := []string{
		fmt.Sprintf("classified intent as %s", intent),
		fmt.Sprintf("routed to node %q", target),
	}

	// Stage 3: processing. An unregistered target stops the pipeline here.
	processor, ok := o.node(target)
	if !ok {
		return o.fail(ctx, traceID, created, fmt.Errorf("%w: %q", ErrUnknownNode, target))
	}
	result, err := processor.Process(ctx, Input{"query": text})
	if err != nil {
		return o.fail(ctx, traceID, created, fmt.Errorf("node %q: %w", target, err))
	}
	record(result.Node)

	// Stage 4: validation, when a validator is registered.
	var validation *bool
	if validator, ok := o.node("validator"); ok && target != "validator" {
		valid := validator.ValidateOutput(result)
		validation = &valid

		reflectionType := Affirmation
		cause := "validator accepted the output"
		if !valid {
			reflectionType = Regret
			cause = "validator rejected the output"
		}
		reflection, rerr := o.core.NewReflection(reflectionType, cause, nil, nil)
		if rerr != nil {
			return o.fail(ctx, traceID, created, rerr)
		}
		reflectionNode, rerr := o.core.NewNode(ctx, NodeSpec{
			Type:        NodeReflect,
			State:       NodeState{Confidence: result.Confidence, Salience: 0.5},
			TraceID:     traceID,
			Reflections: []NodeReflection{reflection},
			Triggers: []NodeTrigger{
				NewTrigger("output_validated", result.Node.ID, cause),
			},
			Data: map[string]any{"validated": valid},
		})
		if rerr != nil {
			return o.fail(ctx, traceID, created, rerr)
		}
		record(reflectionNode)
		reasoning = append(reasoning, cause)
	}

	// Response assembly.
	trace := ExecutionTrace{
		Timestamp:        start,
		NodeName:         target,
		InputData:        text,
		OutputData:       result.Answer,
		Node:             *result.Node,
		ProcessingTime:   result.ProcessingTime,
		ValidationResult: validation,
		ReasoningChain:   reasoning,
	}
	o.mu.Lock()
	o.traces = append(o.traces, trace)
	o.mu.Unlock()

	capitan.Emit(ctx, QueryCompleted,
		FieldTraceID.Field(traceID),
		FieldAnswer.Field(result.Answer),
		FieldConfidence.Field(float32(result.Confidence)),
		FieldNodeCount.Field(len(created)),
		FieldTotalDuration.Field(time.Since(start)),
	)

	return &Response{
		Answer:         result.Answer,
		Confidence:     result.Confidence,
		Nodes:          created,
		Trace:          &trace,
		ReasoningChain: reasoning,
	}, nil
}

// fail converts a pipeline error into a structured response carrying the
// nodes created before the stop.
func (o *Orchestrator) fail(ctx context.Context, traceID string, created []*Node, err error) (*Response, error) {
	capitan.Error(ctx, QueryFailed,
		FieldTraceID.Field(traceID),
		FieldError.Field(err),
		FieldNodeCount.Field(len(created)),
	)
	return &Response{
		Error: err.Error(),
		Nodes: created,
	}, err
}
