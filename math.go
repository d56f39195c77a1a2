package matriz

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MathNode evaluates arithmetic expressions under a restricted grammar:
// numbers, + - * / and exponentiation (^ or **), parentheses, the constants
// pi, e and tau, and unary signs. Nothing else parses; there is no general
// code execution path.
type MathNode struct {
	*Core
}

// NewMathNode creates a math evaluator node for the given tenant.
func NewMathNode(tenant string) *MathNode {
	return &MathNode{
		Core: NewCore("math", []string{"arithmetic", "expression-evaluation"}, tenant),
	}
}

// Process evaluates the expression in input["query"]. A successful evaluation
// emits a COMPUTATION node with a complexity-scaled confidence; any parse or
// evaluation error (division by zero included) emits a COMPUTATION node with
// confidence 0.1 and a regret reflection instead of failing the call.
func (m *MathNode) Process(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	expr, ok := input["query"].(string)
	if !ok {
		return nil, fmt.Errorf("math node: input missing string query")
	}

	value, complexity, err := evaluate(expr)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		if err == nil {
			err = fmt.Errorf("non-finite result")
		}
		return m.failure(ctx, expr, err, start)
	}

	confidence := mathConfidence(complexity, value)
	answer := strconv.FormatFloat(value, 'g', -1, 64)

	node, nerr := m.NewNode(ctx, NodeSpec{
		Type:  NodeComputation,
		State: NodeState{Confidence: confidence, Salience: 0.8},
		Triggers: []NodeTrigger{
			NewTrigger("computation_request", "", "expression evaluated"),
		},
		Data: map[string]any{
			"expression": expr,
			"result":     value,
			"complexity": complexity,
		},
	})
	if nerr != nil {
		return nil, nerr
	}

	return &Result{
		Answer:         answer,
		Confidence:     confidence,
		Node:           node,
		ProcessingTime: time.Since(start),
		Extra:          map[string]any{"query": expr, "result": value},
	}, nil
}

// failure records a failed evaluation as an auditable low-confidence node.
func (m *MathNode) failure(ctx context.Context, expr string, cause error, start time.Time) (*Result, error) {
	reflection, rerr := m.NewReflection(Regret, cause.Error(), nil, nil)
	if rerr != nil {
		return nil, rerr
	}

	node, nerr := m.NewNode(ctx, NodeSpec{
		Type:        NodeComputation,
		State:       NodeState{Confidence: 0.1, Salience: 0.8},
		Reflections: []NodeReflection{reflection},
		Triggers: []NodeTrigger{
			NewTrigger("computation_request", "", "expression rejected"),
		},
		Data: map[string]any{
			"expression": expr,
			"error":      cause.Error(),
		},
	})
	if nerr != nil {
		return nil, nerr
	}

	return &Result{
		Answer:         fmt.Sprintf("I could not evaluate that expression: %v", cause),
		Confidence:     0.1,
		Node:           node,
		ProcessingTime: time.Since(start),
		Extra:          map[string]any{"query": expr, "error": cause.Error()},
	}, nil
}

// ValidateOutput checks one of this node's own prior outputs structurally.
func (m *MathNode) ValidateOutput(result *Result) bool {
	if result == nil || result.Answer == "" {
		return false
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return false
	}
	if result.Node == nil || result.Node.Type != NodeComputation {
		return false
	}
	return m.ValidateNode(result.Node)
}

// mathConfidence scales confidence down with expression complexity and again
// for extreme-magnitude results, with a floor of 0.1.
func mathConfidence(complexity int, value float64) float64 {
	confidence := 0.95 - 0.04*float64(complexity)
	abs := math.Abs(value)
	if abs > 1e12 || (abs != 0 && abs < 1e-12) {
		confidence *= 0.5
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}

// --- expression evaluation -------------------------------------------------

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp               // + - * / ^
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	value float64
	op    byte
}

var mathConstants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
}

// evaluate parses and evaluates expr, returning the value and a complexity
// score (operators count 1, exponentiation 2, parentheses and constants 1).
func evaluate(expr string) (float64, int, error) {
	tokens, complexity, err := tokenize(expr)
	if err != nil {
		return 0, 0, err
	}
	if len(tokens) == 0 {
		return 0, 0, fmt.Errorf("empty expression")
	}

	p := &parser{tokens: tokens}
	value, err := p.expression()
	if err != nil {
		return 0, 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, 0, fmt.Errorf("unexpected token at position %d", p.pos)
	}
	return value, complexity, nil
}

func tokenize(expr string) ([]token, int, error) {
	var tokens []token
	complexity := 0
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, 0, fmt.Errorf("bad number %q", expr[i:j])
			}
			tokens = append(tokens, token{kind: tokNumber, value: v})
			i = j
		case c == '+' || c == '-' || c == '/':
			tokens = append(tokens, token{kind: tokOp, op: c})
			complexity++
			i++
		case c == '*':
			if i+1 < len(expr) && expr[i+1] == '*' {
				tokens = append(tokens, token{kind: tokOp, op: '^'})
				complexity += 2
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokOp, op: '*'})
				complexity++
				i++
			}
		case c == '^':
			tokens = append(tokens, token{kind: tokOp, op: '^'})
			complexity += 2
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen})
			complexity++
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen})
			i++
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			j := i
			for j < len(expr) && (expr[j] >= 'a' && expr[j] <= 'z' || expr[j] >= 'A' && expr[j] <= 'Z') {
				j++
			}
			name := strings.ToLower(expr[i:j])
			v, ok := mathConstants[name]
			if !ok {
				return nil, 0, fmt.Errorf("unknown identifier %q", expr[i:j])
			}
			tokens = append(tokens, token{kind: tokNumber, value: v})
			complexity++
			i = j
		default:
			return nil, 0, fmt.Errorf("unexpected character %q", c)
		}
	}
	return tokens, complexity, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

// expression := term (('+'|'-') term)*
func (p *parser) expression() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.op != '+' && t.op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if t.op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// term := power (('*'|'/') power)*
func (p *parser) term() (float64, error) {
	left, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.op != '*' && t.op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.power()
		if err != nil {
			return 0, err
		}
		if t.op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

// power := unary ('^' power)?   (right associative)
func (p *parser) power() (float64, error) {
	base, err := p.unary()
	if err != nil {
		return 0, err
	}
	t, ok := p.peek()
	if !ok || t.kind != tokOp || t.op != '^' {
		return base, nil
	}
	p.pos++
	exp, err := p.power()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

// unary := ('+'|'-')* primary
func (p *parser) unary() (float64, error) {
	sign := 1.0
	for {
		t, ok := p.peek()
		if ok && t.kind == tokOp && (t.op == '+' || t.op == '-') {
			if t.op == '-' {
				sign = -sign
			}
			p.pos++
			continue
		}
		break
	}
	v, err := p.primary()
	if err != nil {
		return 0, err
	}
	return sign * v, nil
}

// primary := number | '(' expression ')'
func (p *parser) primary() (float64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return t.value, nil
	case tokLParen:
		p.pos++
		v, err := p.expression()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected token at position %d", p.pos)
	}
}
