package matriz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// ErrPipelineTimeout is returned when the overall pipeline budget expires.
var ErrPipelineTimeout = errors.New("pipeline exceeded total timeout")

// cycle carries one query run through the bounded pipeline. Stage goroutines
// may still be writing when the overall budget expires, so every field
// access goes through the mutex; the partial stage list read at that point
// is race-free but not a guaranteed-consistent snapshot of the run.
type cycle struct {
	traceID string
	query   string

	mu        sync.Mutex
	intent    Intent
	target    string
	rerouted  bool
	result    *Result
	validated *bool
	nodes     []*Node
	stages    []StageResult
}

func (c *cycle) addNode(n *Node) {
	if n == nil {
		return
	}
	c.mu.Lock()
	c.nodes = append(c.nodes, n)
	c.mu.Unlock()
}

func (c *cycle) addStage(sr StageResult) {
	c.mu.Lock()
	c.stages = append(c.stages, sr)
	c.mu.Unlock()
}

func (c *cycle) snapshot() (stages []StageResult, nodes []*Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stages = make([]StageResult, len(c.stages))
	copy(stages, c.stages)
	nodes = make([]*Node, len(c.nodes))
	copy(nodes, c.nodes)
	return stages, nodes
}

// BoundedOrchestrator runs the same conceptual pipeline as Orchestrator, but
// every stage executes under its own latency budget with a criticality flag,
// the whole run sits under an overall budget, and per-node health feeds
// adaptive rerouting. Failures always surface as structured responses; no
// stage error propagates as a panic.
type BoundedOrchestrator struct {
	core   *Core
	graph  *Graph
	health *HealthTracker
	stages map[Stage]StageConfig
	total  time.Duration

	mu    sync.RWMutex
	nodes map[string]CognitiveNode
}

// BoundedOption configures a BoundedOrchestrator at construction.
type BoundedOption func(*BoundedOrchestrator)

// WithStageConfig overrides one stage's budget and criticality.
func WithStageConfig(stage Stage, cfg StageConfig) BoundedOption {
	return func(b *BoundedOrchestrator) {
		b.stages[stage] = cfg
	}
}

// WithTotalTimeout overrides the overall pipeline budget.
func WithTotalTimeout(d time.Duration) BoundedOption {
	return func(b *BoundedOrchestrator) {
		b.total = d
	}
}

// NewBoundedOrchestrator creates a bounded orchestrator for the given tenant.
func NewBoundedOrchestrator(tenant string, opts ...BoundedOption) *BoundedOrchestrator {
	b := &BoundedOrchestrator{
		core:   NewCore("orchestrator", []string{"intent-routing", "bounded-orchestration"}, tenant),
		graph:  NewGraph(),
		health: NewHealthTracker(),
		stages: DefaultStageConfigs(),
		total:  DefaultTotalTimeout,
		nodes:  make(map[string]CognitiveNode),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterNode stores a node under name. Last write wins.
func (b *BoundedOrchestrator) RegisterNode(name string, node CognitiveNode) {
	b.mu.Lock()
	b.nodes[name] = node
	b.mu.Unlock()

	capitan.Emit(context.Background(), NodeRegistered,
		FieldNodeName.Field(name),
	)
}

func (b *BoundedOrchestrator) node(name string) (CognitiveNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[name]
	return n, ok
}

// Graph returns the causal graph built across this orchestrator's lifetime.
func (b *BoundedOrchestrator) Graph() *Graph {
	return b.graph
}

// CausalChain walks trigger back-pointers from the given node ID.
func (b *BoundedOrchestrator) CausalChain(id string) []*Node {
	return b.graph.CausalChain(id)
}

// PerformanceReport is a read-only snapshot for external monitoring.
type PerformanceReport struct {
	NodeHealth     map[string]HealthSnapshot `json:"node_health"`
	StageTimeouts  map[Stage]float64         `json:"stage_timeouts"` // ms
	StageCritical  map[Stage]bool            `json:"stage_critical"`
	TotalTimeoutMS float64                   `json:"total_timeout_ms"`
}

// PerformanceReport returns the current health and budget configuration.
func (b *BoundedOrchestrator) PerformanceReport() PerformanceReport {
	timeouts := make(map[Stage]float64, len(b.stages))
	critical := make(map[Stage]bool, len(b.stages))
	for stage, cfg := range b.stages {
		timeouts[stage] = float64(cfg.Timeout) / float64(time.Millisecond)
		critical[stage] = cfg.Critical
	}
	return PerformanceReport{
		NodeHealth:     b.health.Snapshot(),
		StageTimeouts:  timeouts,
		StageCritical:  critical,
		TotalTimeoutMS: float64(b.total) / float64(time.Millisecond),
	}
}

// ProcessQuery runs text through the bounded pipeline. The overall budget is
// enforced around the whole run: on expiry the response carries whatever
// stage results had been recorded, and any in-flight processing goroutine is
// abandoned with its result discarded.
func (b *BoundedOrchestrator) ProcessQuery(ctx context.Context, text string) (*Response, error) {
	c := &cycle{traceID: uuid.New().String(), query: text}
	start := time.Now()

	capitan.Emit(ctx, QueryReceived,
		FieldQuery.Field(text),
		FieldTraceID.Field(c.traceID),
	)

	tctx, cancel := context.WithTimeout(ctx, b.total)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.runPipeline(tctx, c)
	}()

	var runErr error
	timedOut := false
	select {
	case runErr = <-done:
	case <-tctx.Done():
		// The caller's context ending is an abort, not a budget expiry.
		if cerr := ctx.Err(); cerr != nil {
			runErr = fmt.Errorf("pipeline aborted: %w", cerr)
		} else {
			timedOut = true
			runErr = fmt.Errorf("%w after %s", ErrPipelineTimeout, b.total)
		}
	}
	total := time.Since(start)

	stages, nodes := c.snapshot()
	metrics := buildMetrics(stages, total, b.total)
	metrics.Timeout = timedOut

	if runErr != nil {
		capitan.Error(ctx, QueryFailed,
			FieldTraceID.Field(c.traceID),
			FieldError.Field(runErr),
			FieldTotalDuration.Field(total),
			FieldTimeout.Field(strconv.FormatBool(timedOut)),
		)
		return &Response{
			Error:   runErr.Error(),
			Stages:  stages,
			Nodes:   nodes,
			Metrics: metrics,
		}, runErr
	}

	c.mu.Lock()
	result := c.result
	c.mu.Unlock()

	// A non-critical processing failure leaves no result; the response is
	// degraded but structured.
	answer := ""
	confidence := 0.0
	if result != nil {
		answer = result.Answer
		confidence = result.Confidence
	}

	capitan.Emit(ctx, QueryCompleted,
		FieldTraceID.Field(c.traceID),
		FieldAnswer.Field(answer),
		FieldConfidence.Field(float32(confidence)),
		FieldTotalDuration.Field(total),
	)

	return &Response{
		Answer:     answer,
		Confidence: confidence,
		Nodes:      nodes,
		Stages:     stages,
		Metrics:    metrics,
		NodeHealth: b.health.Snapshot(),
	}, nil
}

// runPipeline executes the five stages in order, honoring criticality.
func (b *BoundedOrchestrator) runPipeline(ctx context.Context, c *cycle) error {
	if err := b.runStage(ctx, c, StageIntent, b.stageIntent); err != nil {
		if b.stages[StageIntent].Critical {
			return fmt.Errorf("intent stage: %w", err)
		}
		b.skip(ctx, c, StageIntent, err)
	}

	if err := b.runStage(ctx, c, StageDecision, b.stageDecision); err != nil {
		if b.stages[StageDecision].Critical {
			return fmt.Errorf("decision stage: %w", err)
		}
		b.skip(ctx, c, StageDecision, err)
	}

	c.mu.Lock()
	target := c.target
	c.mu.Unlock()
	if _, ok := b.node(target); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, target)
	}

	err := b.runStage(ctx, c, StageProcessing, b.stageProcessing)
	b.recordHealth(ctx, c, target, err == nil)
	if err != nil {
		if b.stages[StageProcessing].Critical {
			return fmt.Errorf("processing stage: %w", err)
		}
		b.skip(ctx, c, StageProcessing, err)
	}

	if _, ok := b.node("validator"); ok && target != "validator" {
		if verr := b.runStage(ctx, c, StageValidation, b.stageValidation); verr != nil {
			b.skip(ctx, c, StageValidation, verr)
		} else {
			c.mu.Lock()
			validated := c.validated != nil && *c.validated
			c.mu.Unlock()
			if validated {
				if rerr := b.runStage(ctx, c, StageReflection, b.stageReflection); rerr != nil {
					b.skip(ctx, c, StageReflection, rerr)
				}
			}
		}
	}

	return nil
}

// runStage executes one stage under its budget via a pipz timeout wrapper
// and records the outcome on the cycle.
func (b *BoundedOrchestrator) runStage(ctx context.Context, c *cycle, stage Stage, fn func(context.Context, *cycle) error) error {
	cfg := b.stages[stage]

	capitan.Emit(ctx, StageStarted,
		FieldTraceID.Field(c.traceID),
		FieldStage.Field(string(stage)),
		FieldCritical.Field(strconv.FormatBool(cfg.Critical)),
	)

	proc := pipz.Apply(pipz.Name(string(stage)), func(ctx context.Context, c *cycle) (*cycle, error) {
		return c, fn(ctx, c)
	})
	bounded := pipz.NewTimeout(pipz.Name(string(stage)+"-budget"), proc, cfg.Timeout)

	start := time.Now()
	_, err := bounded.Process(ctx, c)
	duration := time.Since(start)

	sr := StageResult{
		Stage:      stage,
		Success:    err == nil,
		DurationMS: float64(duration) / float64(time.Millisecond),
		Duration:   duration,
	}
	if err != nil {
		sr.Error = err.Error()
		sr.Timeout = errors.Is(err, context.DeadlineExceeded)
	}
	c.addStage(sr)

	if err != nil {
		capitan.Error(ctx, StageFailed,
			FieldTraceID.Field(c.traceID),
			FieldStage.Field(string(stage)),
			FieldStageDuration.Field(duration),
			FieldTimeout.Field(strconv.FormatBool(sr.Timeout)),
			FieldError.Field(err),
		)
		return err
	}

	capitan.Emit(ctx, StageCompleted,
		FieldTraceID.Field(c.traceID),
		FieldStage.Field(string(stage)),
		FieldStageDuration.Field(duration),
	)
	return nil
}

// skip records that a non-critical stage was bypassed after failing.
func (b *BoundedOrchestrator) skip(ctx context.Context, c *cycle, stage Stage, err error) {
	capitan.Emit(ctx, StageSkipped,
		FieldTraceID.Field(c.traceID),
		FieldStage.Field(string(stage)),
		FieldError.Field(err),
	)
}

// recordHealth folds the most recent processing duration into the tracker.
func (b *BoundedOrchestrator) recordHealth(ctx context.Context, c *cycle, target string, success bool) {
	var duration time.Duration
	c.mu.Lock()
	for i := len(c.stages) - 1; i >= 0; i-- {
		if c.stages[i].Stage == StageProcessing {
			duration = c.stages[i].Duration
			break
		}
	}
	c.mu.Unlock()
	b.health.Record(ctx, target, duration, success)
}

// stageIntent classifies the query and records an INTENT node.
func (b *BoundedOrchestrator) stageIntent(ctx context.Context, c *cycle) error {
	intent := classifyIntent(c.query)

	node, err := b.core.NewNode(ctx, NodeSpec{
		Type:    NodeIntent,
		State:   NodeState{Confidence: 0.9, Salience: 0.6},
		TraceID: c.traceID,
		Triggers: []NodeTrigger{
			NewTrigger("query_received", "", "intent classified"),
		},
		Data: map[string]any{"query": c.query, "intent": string(intent)},
	})
	if err != nil {
		return err
	}
	b.graph.Add(node)
	c.addNode(node)

	c.mu.Lock()
	c.intent = intent
	c.mu.Unlock()
	return nil
}

// stageDecision routes the intent to a node name, rerouting away from a node
// that has failed more than it has succeeded toward the registered
// alternative with the lowest p95 latency.
func (b *BoundedOrchestrator) stageDecision(ctx context.Context, c *cycle) error {
	c.mu.Lock()
	intent := c.intent
	c.mu.Unlock()

	target := routeIntent(intent)
	rerouted := false
	if b.health.Unhealthy(target) {
		if alt, ok := b.fastestAlternative(target); ok {
			capitan.Emit(ctx, NodeRerouted,
				FieldTraceID.Field(c.traceID),
				FieldNodeName.Field(target),
				FieldIntent.Field(string(intent)),
			)
			target = alt
			rerouted = true
		}
	}

	var intentNodeID string
	c.mu.Lock()
	if len(c.nodes) > 0 {
		intentNodeID = c.nodes[len(c.nodes)-1].ID
	}
	c.mu.Unlock()

	node, err := b.core.NewNode(ctx, NodeSpec{
		Type:    NodeDecision,
		State:   NodeState{Confidence: 0.85, Salience: 0.6},
		TraceID: c.traceID,
		Triggers: []NodeTrigger{
			NewTrigger("intent_classified", intentNodeID, "node selected"),
		},
		Data: map[string]any{
			"intent":        string(intent),
			"selected_node": target,
			"rerouted":      rerouted,
		},
	})
	if err != nil {
		return err
	}
	b.graph.Add(node)
	c.addNode(node)

	c.mu.Lock()
	c.target = target
	c.rerouted = rerouted
	c.mu.Unlock()
	return nil
}

// fastestAlternative picks the registered node, other than excluded and the
// validator, with the lowest tracked p95 latency.
func (b *BoundedOrchestrator) fastestAlternative(excluded string) (string, bool) {
	b.mu.RLock()
	names := make([]string, 0, len(b.nodes))
	for name := range b.nodes {
		names = append(names, name)
	}
	b.mu.RUnlock()

	best := ""
	var bestP95 time.Duration
	for _, name := range names {
		if name == excluded || name == "validator" {
			continue
		}
		p95, ok := b.health.P95(name)
		if !ok {
			continue
		}
		if best == "" || p95 < bestP95 {
			best = name
			bestP95 = p95
		}
	}
	return best, best != ""
}

// stageProcessing offloads the selected node's synchronous Process call to a
// goroutine so a slow node cannot stall the pipeline. On deadline the
// goroutine is abandoned; whatever it eventually computes is discarded.
func (b *BoundedOrchestrator) stageProcessing(ctx context.Context, c *cycle) error {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()

	node, ok := b.node(target)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, target)
	}

	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := node.Process(ctx, Input{"query": c.query})
		ch <- outcome{result: r, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return out.err
		}
		b.graph.Add(out.result.Node)
		c.addNode(out.result.Node)
		c.mu.Lock()
		c.result = out.result
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stageValidation runs the registered validator against the processing
// result. Non-critical: a failure here is recorded and skipped.
func (b *BoundedOrchestrator) stageValidation(ctx context.Context, c *cycle) error {
	validator, ok := b.node("validator")
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, "validator")
	}

	c.mu.Lock()
	result := c.result
	c.mu.Unlock()
	if result == nil {
		return fmt.Errorf("no processing result to validate")
	}

	valid := validator.ValidateOutput(result)
	c.mu.Lock()
	c.validated = &valid
	c.mu.Unlock()
	return nil
}

// stageReflection records the cycle's self-assessment as a REFLECTION node.
func (b *BoundedOrchestrator) stageReflection(ctx context.Context, c *cycle) error {
	c.mu.Lock()
	result := c.result
	validated := c.validated != nil && *c.validated
	c.mu.Unlock()
	if result == nil {
		return fmt.Errorf("no processing result to reflect on")
	}

	reflectionType := Affirmation
	cause := "validator accepted the output"
	if !validated {
		reflectionType = Regret
		cause = "validator rejected the output"
	}
	reflection, err := b.core.NewReflection(reflectionType, cause, nil, nil)
	if err != nil {
		return err
	}

	node, err := b.core.NewNode(ctx, NodeSpec{
		Type:        NodeReflect,
		State:       NodeState{Confidence: result.Confidence, Salience: 0.5},
		TraceID:     c.traceID,
		Reflections: []NodeReflection{reflection},
		Triggers: []NodeTrigger{
			NewTrigger("output_validated", result.Node.ID, cause),
		},
		Data: map[string]any{"validated": validated},
	})
	if err != nil {
		return err
	}
	b.graph.Add(node)
	c.addNode(node)
	return nil
}

// buildMetrics aggregates stage results into the response metrics object.
func buildMetrics(stages []StageResult, total, budget time.Duration) *Metrics {
	m := &Metrics{
		TotalDurationMS: float64(total) / float64(time.Millisecond),
		StageDurations:  make(map[Stage]float64, len(stages)),
		WithinBudget:    total < budget,
	}
	for _, sr := range stages {
		m.StageDurations[sr.Stage] = sr.DurationMS
		if sr.Success {
			m.StagesCompleted++
		} else {
			m.StagesFailed++
		}
		if sr.Timeout {
			m.TimeoutCount++
		}
	}
	return m
}
