package matriz

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// mathTolerance is the absolute tolerance for re-evaluated expressions.
const mathTolerance = 1e-10

// ValidatorNode cross-checks another node's output with up to four
// independent strategies: structural, mathematical, factual and logical.
// Strategy verdicts are combined by a fixed confidence weighting plus an
// agreement bonus; a structural failure, or a mathematical or logical
// failure on a low-confidence claim, overrides the weighted average.
type ValidatorNode struct {
	*Core
	knownFacts map[string]string
}

// checkWeights is the per-strategy confidence weighting.
var checkWeights = map[string]float64{
	"structural":   0.95,
	"mathematical": 0.90,
	"factual":      0.70,
	"logical":      0.60,
}

// NewValidatorNode creates a validator node for the given tenant.
func NewValidatorNode(tenant string) *ValidatorNode {
	return &ValidatorNode{
		Core: NewCore("validator", []string{"output-validation", "cross-checking"}, tenant),
		knownFacts: map[string]string{
			"capital of france":      "paris",
			"capital of germany":     "berlin",
			"capital of japan":       "tokyo",
			"largest ocean":          "pacific",
			"tallest mountain":       "everest",
			"speed of light":         "299,792,458",
			"boiling point of water": "100",
		},
	}
}

// CheckOutcome is one strategy's verdict on an output.
type CheckOutcome struct {
	Name       string `json:"name"`
	Applicable bool   `json:"applicable"`
	Passed     bool   `json:"passed"`
	Detail     string `json:"detail,omitempty"`
}

// ValidationReport aggregates the strategy verdicts for one output.
type ValidationReport struct {
	Checks []CheckOutcome `json:"checks"`
	Score  float64        `json:"score"`
	Passed bool           `json:"passed"`
	Node   *Node          `json:"matriz_node"`
}

// Process validates the *Result carried in input["result"].
func (v *ValidatorNode) Process(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	target, ok := input["result"].(*Result)
	if !ok {
		return nil, fmt.Errorf("validator node: input missing *Result under \"result\"")
	}

	report, err := v.Validate(ctx, target)
	if err != nil {
		return nil, err
	}

	answer := "output failed validation"
	if report.Passed {
		answer = "output passed validation"
	}

	return &Result{
		Answer:         answer,
		Confidence:     report.Score,
		Node:           report.Node,
		ProcessingTime: time.Since(start),
		Extra:          map[string]any{"report": report},
	}, nil
}

// ValidateOutput runs the full strategy suite against another node's output
// and reports pass/fail. Internal failures read as "untrusted", never panic.
func (v *ValidatorNode) ValidateOutput(result *Result) bool {
	report, err := v.Validate(context.Background(), result)
	if err != nil {
		return false
	}
	return report.Passed
}

// Validate runs every applicable strategy, combines verdicts, and emits a
// VALIDATION node recording the outcome.
func (v *ValidatorNode) Validate(ctx context.Context, result *Result) (*ValidationReport, error) {
	structural := v.checkStructural(result)
	mathematical := v.checkMathematical(result)
	factual := v.checkFactual(result)
	logical := v.checkLogical(result)
	checks := []CheckOutcome{structural, mathematical, factual, logical}

	score := weightedScore(checks)
	passed := score >= 0.5

	// Hard overrides: a structural break, or a mathematical/logical break on
	// a claim the producer itself was not confident in, is a critical failure.
	claimed := 0.0
	if result != nil {
		claimed = result.Confidence
	}
	if !structural.Passed {
		passed = false
	}
	if claimed < 0.5 {
		if mathematical.Applicable && !mathematical.Passed {
			passed = false
		}
		if logical.Applicable && !logical.Passed {
			passed = false
		}
	}

	reflectionType := Affirmation
	cause := "output cross-checks agree"
	if !passed {
		reflectionType = Regret
		cause = "output failed cross-checking"
	}
	reflection, err := v.NewReflection(reflectionType, cause, nil, nil)
	if err != nil {
		return nil, err
	}

	spec := NodeSpec{
		Type:        NodeValidation,
		State:       NodeState{Confidence: score, Salience: 0.6},
		Reflections: []NodeReflection{reflection},
		Triggers: []NodeTrigger{
			NewTrigger("validation_request", targetNodeID(result), "output cross-checked"),
		},
		Data: map[string]any{
			"passed": passed,
			"score":  score,
		},
	}
	if id := targetNodeID(result); id != "" {
		link, lerr := v.NewLink(id, LinkEvidence, Unidirectional)
		if lerr != nil {
			return nil, lerr
		}
		spec.Links = []NodeLink{link}
	}

	node, err := v.NewNode(ctx, spec)
	if err != nil {
		return nil, err
	}

	return &ValidationReport{
		Checks: checks,
		Score:  score,
		Passed: passed,
		Node:   node,
	}, nil
}

func targetNodeID(result *Result) string {
	if result == nil || result.Node == nil {
		return ""
	}
	return result.Node.ID
}

// weightedScore combines applicable verdicts by their fixed weights, adding
// a cross-validation bonus when three or more applicable strategies agree.
func weightedScore(checks []CheckOutcome) float64 {
	total := 0.0
	earned := 0.0
	applicable := 0
	agree := true
	first := true
	firstVerdict := false
	for _, c := range checks {
		if !c.Applicable {
			continue
		}
		applicable++
		w := checkWeights[c.Name]
		total += w
		if c.Passed {
			earned += w
		}
		if first {
			firstVerdict = c.Passed
			first = false
		} else if c.Passed != firstVerdict {
			agree = false
		}
	}
	if total == 0 {
		return 0
	}
	score := earned / total
	if applicable >= 3 && agree {
		score = math.Min(1, score+0.1)
	}
	return score
}

// checkStructural verifies the required fields and types of an output.
func (v *ValidatorNode) checkStructural(result *Result) CheckOutcome {
	c := CheckOutcome{Name: "structural", Applicable: true}
	switch {
	case result == nil:
		c.Detail = "nil result"
	case result.Answer == "":
		c.Detail = "empty answer"
	case result.Confidence < 0 || result.Confidence > 1:
		c.Detail = "confidence out of range"
	case result.Node == nil:
		c.Detail = "missing audit node"
	case !v.ValidateNode(result.Node):
		c.Detail = "audit node failed validation"
	case result.ProcessingTime < 0:
		c.Detail = "negative processing time"
	default:
		c.Passed = true
	}
	return c
}

// checkMathematical re-evaluates an embedded expression and compares the
// claimed result within tolerance. Not applicable without an expression.
func (v *ValidatorNode) checkMathematical(result *Result) CheckOutcome {
	c := CheckOutcome{Name: "mathematical"}
	expr := embeddedExpression(result)
	if expr == "" {
		return c
	}
	expected, _, err := evaluate(expr)
	if err != nil {
		return c
	}
	c.Applicable = true

	claimed, ok := claimedValue(result)
	if !ok {
		c.Detail = "no numeric answer to compare"
		return c
	}
	if math.Abs(claimed-expected) <= mathTolerance {
		c.Passed = true
	} else {
		c.Detail = fmt.Sprintf("claimed %v, re-evaluated %v", claimed, expected)
	}
	return c
}

// checkFactual fuzzy-matches the question against the known-facts table and
// checks that the answer mentions the expected terms.
func (v *ValidatorNode) checkFactual(result *Result) CheckOutcome {
	c := CheckOutcome{Name: "factual"}
	if result == nil {
		return c
	}
	question := strings.ToLower(embeddedQuery(result))
	if question == "" {
		return c
	}
	for topic, expected := range v.knownFacts {
		if similarity(normalizeQuestion(question), topic) < 0.6 &&
			!strings.Contains(question, topic) {
			continue
		}
		c.Applicable = true
		if strings.Contains(strings.ToLower(result.Answer), expected) {
			c.Passed = true
		} else {
			c.Detail = fmt.Sprintf("answer does not mention %q", expected)
		}
		return c
	}
	return c
}

// checkLogical verifies confidence-versus-answer consistency and that the
// node's reflections agree with the claimed confidence.
func (v *ValidatorNode) checkLogical(result *Result) CheckOutcome {
	c := CheckOutcome{Name: "logical", Applicable: true}
	if result == nil {
		c.Detail = "nil result"
		return c
	}
	if result.Answer == UnknownAnswer && result.Confidence > 0.3 {
		c.Detail = "high confidence on an unknown answer"
		return c
	}
	if result.Node != nil {
		for _, r := range result.Node.Reflections {
			if r.ReflectionType == Regret && result.Confidence > 0.5 {
				c.Detail = "regret reflection with high confidence"
				return c
			}
			if r.ReflectionType == Affirmation && result.Confidence < 0.2 {
				c.Detail = "affirmation reflection with very low confidence"
				return c
			}
		}
	}
	c.Passed = true
	return c
}

// embeddedExpression recovers the arithmetic expression an output claims to
// have evaluated, from its extra fields or audit node state.
func embeddedExpression(result *Result) string {
	if result == nil {
		return ""
	}
	if result.Node != nil {
		if expr, ok := result.Node.State["expression"].(string); ok {
			return expr
		}
	}
	if q, ok := result.Extra["query"].(string); ok {
		if _, _, err := evaluate(q); err == nil {
			return q
		}
	}
	return ""
}

// embeddedQuery recovers the original question from an output.
func embeddedQuery(result *Result) string {
	if result == nil {
		return ""
	}
	if q, ok := result.Extra["query"].(string); ok {
		return q
	}
	if result.Node != nil {
		if q, ok := result.Node.State["question"].(string); ok {
			return q
		}
	}
	return ""
}

// claimedValue parses the numeric value an output claims as its answer.
func claimedValue(result *Result) (float64, bool) {
	if result == nil {
		return 0, false
	}
	if v, ok := stateFloat(result.Extra, "result"); ok {
		return v, true
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(result.Answer), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
