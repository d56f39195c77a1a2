package matriz

import (
	"errors"
	"fmt"
	"time"
)

// SchemaRef identifies the node schema version carried by every node.
const SchemaRef = "matriz-node-v1"

// NodeVersion is the current node record version.
const NodeVersion = 1

// Construction errors. Enum violations and incomplete state fail at
// construction time; numeric range violations are caught by validation.
var (
	ErrInvalidNodeType       = errors.New("invalid node type")
	ErrInvalidLinkType       = errors.New("invalid link type")
	ErrInvalidDirection      = errors.New("invalid link direction")
	ErrInvalidReflectionType = errors.New("invalid reflection type")
	ErrStateIncomplete       = errors.New("state missing confidence or salience")
)

// NodeType classifies what kind of processing step a node records.
type NodeType string

const (
	NodeSensoryImg   NodeType = "SENSORY_IMG"
	NodeSensoryAud   NodeType = "SENSORY_AUD"
	NodeSensoryVid   NodeType = "SENSORY_VID"
	NodeSensoryTouch NodeType = "SENSORY_TOUCH"
	NodeEmotion      NodeType = "EMOTION"
	NodeIntent       NodeType = "INTENT"
	NodeDecision     NodeType = "DECISION"
	NodeContext      NodeType = "CONTEXT"
	NodeMemory       NodeType = "MEMORY"
	NodeReflect      NodeType = "REFLECTION"
	NodeCausal       NodeType = "CAUSAL"
	NodeTemporal     NodeType = "TEMPORAL"
	NodeAwareness    NodeType = "AWARENESS"
	NodeHypothesis   NodeType = "HYPOTHESIS"
	NodeReplay       NodeType = "REPLAY"
	NodeDRM          NodeType = "DRM"
	NodeComputation  NodeType = "COMPUTATION"
	NodeValidation   NodeType = "VALIDATION"
)

var nodeTypes = map[NodeType]struct{}{
	NodeSensoryImg: {}, NodeSensoryAud: {}, NodeSensoryVid: {}, NodeSensoryTouch: {},
	NodeEmotion: {}, NodeIntent: {}, NodeDecision: {}, NodeContext: {},
	NodeMemory: {}, NodeReflect: {}, NodeCausal: {}, NodeTemporal: {},
	NodeAwareness: {}, NodeHypothesis: {}, NodeReplay: {}, NodeDRM: {},
	NodeComputation: {}, NodeValidation: {},
}

// Valid reports whether t is a member of the node type set.
func (t NodeType) Valid() bool {
	_, ok := nodeTypes[t]
	return ok
}

// LinkType classifies the relationship a link asserts between two nodes.
type LinkType string

const (
	LinkTemporal  LinkType = "temporal"
	LinkCausal    LinkType = "causal"
	LinkSemantic  LinkType = "semantic"
	LinkEmotional LinkType = "emotional"
	LinkSpatial   LinkType = "spatial"
	LinkEvidence  LinkType = "evidence"
)

var linkTypes = map[LinkType]struct{}{
	LinkTemporal: {}, LinkCausal: {}, LinkSemantic: {},
	LinkEmotional: {}, LinkSpatial: {}, LinkEvidence: {},
}

// Valid reports whether t is a member of the link type set.
func (t LinkType) Valid() bool {
	_, ok := linkTypes[t]
	return ok
}

// Direction describes whether a link reads one way or both ways.
type Direction string

const (
	Unidirectional Direction = "unidirectional"
	Bidirectional  Direction = "bidirectional"
)

// Valid reports whether d is a member of the direction set.
func (d Direction) Valid() bool {
	return d == Unidirectional || d == Bidirectional
}

// ReflectionType classifies a producer's self-assessment of its own output.
type ReflectionType string

const (
	Regret               ReflectionType = "regret"
	Affirmation          ReflectionType = "affirmation"
	DissonanceResolution ReflectionType = "dissonance_resolution"
	MoralConflict        ReflectionType = "moral_conflict"
	SelfQuestion         ReflectionType = "self_question"
)

var reflectionTypes = map[ReflectionType]struct{}{
	Regret: {}, Affirmation: {}, DissonanceResolution: {},
	MoralConflict: {}, SelfQuestion: {},
}

// Valid reports whether t is a member of the reflection type set.
func (t ReflectionType) Valid() bool {
	_, ok := reflectionTypes[t]
	return ok
}

// NodeState carries the numeric signals recorded for one processing step.
// Confidence and Salience are required and expected in [0,1]; the optional
// signals are pointers so absence is distinguishable from zero. Range checks
// happen during node validation, not construction.
type NodeState struct {
	Confidence  float64  `json:"confidence"`
	Salience    float64  `json:"salience"`
	Valence     *float64 `json:"valence,omitempty"` // [-1,1]
	Arousal     *float64 `json:"arousal,omitempty"`
	Novelty     *float64 `json:"novelty,omitempty"`
	Urgency     *float64 `json:"urgency,omitempty"`
	ShockFactor *float64 `json:"shock_factor,omitempty"`
	Risk        *float64 `json:"risk,omitempty"`
	Utility     *float64 `json:"utility,omitempty"`
}

// toMap flattens the state into the key-value form carried on a Node.
// Optional signals are included only when present.
func (s NodeState) toMap() map[string]any {
	m := map[string]any{
		"confidence": s.Confidence,
		"salience":   s.Salience,
	}
	opt := map[string]*float64{
		"valence": s.Valence, "arousal": s.Arousal, "novelty": s.Novelty,
		"urgency": s.Urgency, "shock_factor": s.ShockFactor,
		"risk": s.Risk, "utility": s.Utility,
	}
	for k, v := range opt {
		if v != nil {
			m[k] = *v
		}
	}
	return m
}

// NodeLink is a typed edge from the owning node to another node.
type NodeLink struct {
	TargetNodeID string    `json:"target_node_id"`
	LinkType     LinkType  `json:"link_type"`
	Direction    Direction `json:"direction"`
	Weight       *float64  `json:"weight,omitempty"` // [0,1]
	Explanation  string    `json:"explanation,omitempty"`
}

// NewLink builds a link to targetID, failing on enum violations.
// Weight and Explanation may be set on the returned value.
func NewLink(targetID string, linkType LinkType, direction Direction) (NodeLink, error) {
	if !linkType.Valid() {
		return NodeLink{}, fmt.Errorf("%w: %q", ErrInvalidLinkType, linkType)
	}
	if !direction.Valid() {
		return NodeLink{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	return NodeLink{
		TargetNodeID: targetID,
		LinkType:     linkType,
		Direction:    direction,
	}, nil
}

// NodeTrigger records what caused the owning node to be created.
// TriggerNodeID, when set, is the back-pointer causal chains are rebuilt from.
type NodeTrigger struct {
	EventType     string `json:"event_type"`
	Timestamp     int64  `json:"timestamp"` // epoch ms
	TriggerNodeID string `json:"trigger_node_id,omitempty"`
	Effect        string `json:"effect,omitempty"`
}

// NewTrigger builds a trigger stamped with the current time.
func NewTrigger(eventType, triggerNodeID, effect string) NodeTrigger {
	return NodeTrigger{
		EventType:     eventType,
		Timestamp:     time.Now().UnixMilli(),
		TriggerNodeID: triggerNodeID,
		Effect:        effect,
	}
}

// NodeReflection is an introspective annotation on the owning node.
type NodeReflection struct {
	ReflectionType ReflectionType `json:"reflection_type"`
	Timestamp      int64          `json:"timestamp"` // epoch ms
	OldState       map[string]any `json:"old_state,omitempty"`
	NewState       map[string]any `json:"new_state,omitempty"`
	Cause          string         `json:"cause,omitempty"`
}

// NewReflection builds a reflection stamped with the current time,
// failing when the reflection type is not a member of the enumerated set.
func NewReflection(t ReflectionType, cause string, oldState, newState map[string]any) (NodeReflection, error) {
	if !t.Valid() {
		return NodeReflection{}, fmt.Errorf("%w: %q", ErrInvalidReflectionType, t)
	}
	return NodeReflection{
		ReflectionType: t,
		Timestamp:      time.Now().UnixMilli(),
		OldState:       oldState,
		NewState:       newState,
		Cause:          cause,
	}, nil
}

// NodeProvenance is the governance metadata attached to every node.
type NodeProvenance struct {
	Producer         string   `json:"producer"`
	Capabilities     []string `json:"capabilities"`
	Tenant           string   `json:"tenant"`
	TraceID          string   `json:"trace_id"`
	ConsentScopes    []string `json:"consent_scopes"`
	SubjectPseudonym string   `json:"subject_pseudonym,omitempty"`
	ModelSignature   string   `json:"model_signature,omitempty"`
	PolicyVersion    string   `json:"policy_version,omitempty"`
	Colony           string   `json:"colony,omitempty"`
}

// Timestamps carries the node's creation time.
type Timestamps struct {
	CreatedTS int64 `json:"created_ts"` // epoch ms
}

// Node is the atomic unit of the audit trail: one immutable, schema-bound
// record of a single processing step. Nodes are never mutated after creation.
type Node struct {
	Version     int              `json:"version"`
	ID          string           `json:"id"`
	Type        NodeType         `json:"type"`
	State       map[string]any   `json:"state"`
	Timestamps  Timestamps       `json:"timestamps"`
	Provenance  NodeProvenance   `json:"provenance"`
	Links       []NodeLink       `json:"links"`
	EvolvesTo   []string         `json:"evolves_to"`
	Triggers    []NodeTrigger    `json:"triggers"`
	Reflections []NodeReflection `json:"reflections"`
	SchemaRef   string           `json:"schema_ref"`
}

// TriggerNodeIDs returns the causal back-pointers recorded on the node,
// in trigger order, skipping triggers without one.
func (n *Node) TriggerNodeIDs() []string {
	var ids []string
	for _, t := range n.Triggers {
		if t.TriggerNodeID != "" {
			ids = append(ids, t.TriggerNodeID)
		}
	}
	return ids
}

// stateFloat reads a numeric state field regardless of how it was merged in.
func stateFloat(state map[string]any, key string) (float64, bool) {
	v, ok := state[key]
	if !ok {
		return 0, false
	}
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	default:
		return 0, false
	}
}
