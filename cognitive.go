package matriz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// Input is the untyped query payload handed to a cognitive node.
// The only enforced shape is string keys; nodes read what they need.
type Input map[string]any

// Result is the minimum contract every cognitive node's Process fulfills:
// an answer, a confidence score, the audit node recording the step, and the
// wall-clock processing time. Extra carries node-specific additions.
type Result struct {
	Answer         string         `json:"answer"`
	Confidence     float64        `json:"confidence"`
	Node           *Node          `json:"matriz_node"`
	ProcessingTime time.Duration  `json:"processing_time"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// CognitiveNode is the capability every processing unit exposes.
//
// Process must be deterministic for identical input. ValidateOutput is a
// self-check a node applies to a prior output; the validator node also runs
// it against other nodes' outputs.
type CognitiveNode interface {
	Name() string
	Process(ctx context.Context, input Input) (*Result, error)
	ValidateOutput(result *Result) bool
}

// Core provides the shared node-building machinery concrete cognitive nodes
// embed: identity, declared capabilities, tenancy, and the append-only
// processing history of audit nodes the embedding node has created.
//
// Core is safe for concurrent use; history writes are mutex-guarded.
type Core struct {
	name         string
	capabilities []string
	tenant       string

	mu      sync.Mutex
	history []*Node
	limit   int // 0 = unbounded
}

// NewCore creates the shared machinery for a cognitive node.
func NewCore(name string, capabilities []string, tenant string) *Core {
	return &Core{
		name:         name,
		capabilities: capabilities,
		tenant:       tenant,
	}
}

// WithHistoryLimit bounds the processing history to the most recent n nodes.
// Zero keeps the history unbounded, which is the default.
func (c *Core) WithHistoryLimit(n int) *Core {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
	return c
}

// Name returns the node's registry name.
func (c *Core) Name() string {
	return c.name
}

// Tenant returns the multi-tenancy identifier stamped into provenance.
func (c *Core) Tenant() string {
	return c.tenant
}

// Capabilities returns a copy of the declared capability strings.
func (c *Core) Capabilities() []string {
	caps := make([]string, len(c.capabilities))
	copy(caps, c.capabilities)
	return caps
}

// NodeSpec describes a node to be built by Core.NewNode. Data is merged into
// the flattened state after the typed signals, so it may overwrite them.
type NodeSpec struct {
	Type        NodeType
	State       NodeState
	Links       []NodeLink
	Triggers    []NodeTrigger
	Reflections []NodeReflection
	EvolvesTo   []string
	TraceID     string
	Data        map[string]any
}

// NewNode constructs a schema-bound audit node, stamps identity, timestamps
// and provenance, appends it to the processing history, and returns it.
//
// Construction fails when the type is not in the enumerated set or when the
// merged state lacks confidence or salience. It does not re-check numeric
// ranges after the merge; ValidateNode does.
func (c *Core) NewNode(ctx context.Context, spec NodeSpec) (*Node, error) {
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNodeType, spec.Type)
	}

	state := spec.State.toMap()
	for k, v := range spec.Data {
		state[k] = v
	}
	if _, ok := state["confidence"]; !ok {
		return nil, ErrStateIncomplete
	}
	if _, ok := state["salience"]; !ok {
		return nil, ErrStateIncomplete
	}

	node := &Node{
		Version: NodeVersion,
		ID:      uuid.New().String(),
		Type:    spec.Type,
		State:   state,
		Timestamps: Timestamps{
			CreatedTS: time.Now().UnixMilli(),
		},
		Provenance: NodeProvenance{
			Producer:      "matriz." + c.name,
			Capabilities:  c.Capabilities(),
			Tenant:        c.tenant,
			TraceID:       spec.TraceID,
			ConsentScopes: []string{},
		},
		Links:       spec.Links,
		EvolvesTo:   spec.EvolvesTo,
		Triggers:    spec.Triggers,
		Reflections: spec.Reflections,
		SchemaRef:   SchemaRef,
	}

	c.mu.Lock()
	c.history = append(c.history, node)
	if c.limit > 0 && len(c.history) > c.limit {
		c.history = c.history[len(c.history)-c.limit:]
	}
	c.mu.Unlock()

	conf, _ := stateFloat(state, "confidence")
	capitan.Emit(ctx, NodeCreated,
		FieldNodeID.Field(node.ID),
		FieldNodeType.Field(string(node.Type)),
		FieldNodeName.Field(c.name),
		FieldTenant.Field(c.tenant),
		FieldTraceID.Field(spec.TraceID),
		FieldConfidence.Field(float32(conf)),
	)

	return node, nil
}

// ValidateNode is the structural self-check for nodes built by NewNode:
// required fields present, confidence and salience present and in [0,1],
// required provenance fields populated. It never reports a reason, only
// trusted-or-not.
func (c *Core) ValidateNode(node *Node) bool {
	if node == nil {
		return false
	}
	if node.ID == "" || !node.Type.Valid() || node.SchemaRef == "" {
		return false
	}
	if node.Timestamps.CreatedTS == 0 || node.State == nil {
		return false
	}
	conf, ok := stateFloat(node.State, "confidence")
	if !ok || conf < 0 || conf > 1 {
		return false
	}
	sal, ok := stateFloat(node.State, "salience")
	if !ok || sal < 0 || sal > 1 {
		return false
	}
	p := node.Provenance
	if p.Producer == "" || p.Tenant == "" || p.Capabilities == nil || p.ConsentScopes == nil {
		return false
	}
	return true
}

// NewReflection builds a reflection for this node's output, failing on an
// invalid reflection type.
func (c *Core) NewReflection(t ReflectionType, cause string, oldState, newState map[string]any) (NodeReflection, error) {
	return NewReflection(t, cause, oldState, newState)
}

// NewLink builds a typed link to another node, failing on enum violations.
func (c *Core) NewLink(targetID string, linkType LinkType, direction Direction) (NodeLink, error) {
	return NewLink(targetID, linkType, direction)
}

// DeterministicHash canonicalizes input to sorted-key JSON, prefixes it with
// the node's name, and returns the SHA-256 hex digest. Value-equal maps hash
// identically regardless of key order.
func (c *Core) DeterministicHash(input Input) (string, error) {
	canonical, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("canonicalize input: %w", err)
	}
	sum := sha256.Sum256(append([]byte(c.name+":"), canonical...))
	return hex.EncodeToString(sum[:]), nil
}

// Trace returns a defensive copy of the append-only processing history.
func (c *Core) Trace() []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Node, len(c.history))
	copy(out, c.history)
	return out
}
