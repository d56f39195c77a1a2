package matriz

import "time"

// Stage names the bounded units of pipeline work.
type Stage string

const (
	StageIntent     Stage = "intent"
	StageDecision   Stage = "decision"
	StageProcessing Stage = "processing"
	StageValidation Stage = "validation"
	StageReflection Stage = "reflection"
)

// StageResult records one stage execution in the bounded pipeline.
type StageResult struct {
	Stage      Stage         `json:"stage"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Timeout    bool          `json:"timeout,omitempty"`
	DurationMS float64       `json:"duration_ms"`
	Duration   time.Duration `json:"-"`
}

// Metrics aggregates pipeline timing for one query.
type Metrics struct {
	TotalDurationMS float64           `json:"total_duration_ms"`
	StageDurations  map[Stage]float64 `json:"stage_durations,omitempty"`
	StagesCompleted int               `json:"stages_completed"`
	StagesFailed    int               `json:"stages_failed"`
	TimeoutCount    int               `json:"timeout_count"`
	WithinBudget    bool              `json:"within_budget"`
	Timeout         bool              `json:"timeout,omitempty"`
}

// ExecutionTrace summarizes one top-level query: what was selected, what it
// produced, and the human-readable reasoning chain derived from the cycle's
// INTENT, DECISION and REFLECTION nodes. Stored append-only.
type ExecutionTrace struct {
	Timestamp        time.Time     `json:"timestamp"`
	NodeName         string        `json:"node_id"`
	InputData        string        `json:"input_data"`
	OutputData       string        `json:"output_data"`
	Node             Node          `json:"matriz_node"` // value, not reference
	ProcessingTime   time.Duration `json:"processing_time"`
	ValidationResult *bool         `json:"validation_result,omitempty"`
	ReasoningChain   []string      `json:"reasoning_chain"`
}

// Response is what both orchestrators hand back to their caller. Failure
// paths populate Error and whatever partial diagnostics were gathered; a raw
// panic or stack trace never crosses this boundary.
type Response struct {
	Answer         string                    `json:"answer,omitempty"`
	Confidence     float64                   `json:"confidence,omitempty"`
	Nodes          []*Node                   `json:"matriz_nodes,omitempty"`
	Trace          *ExecutionTrace           `json:"trace,omitempty"`
	ReasoningChain []string                  `json:"reasoning_chain,omitempty"`
	Error          string                    `json:"error,omitempty"`
	Stages         []StageResult             `json:"stages,omitempty"`
	Metrics        *Metrics                  `json:"metrics,omitempty"`
	NodeHealth     map[string]HealthSnapshot `json:"node_health,omitempty"`
}
