package matriz

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobz-io/zyn"
)

// LanguageNode answers free-form queries through a zyn Transform synapse.
// It is an optional cognitive node: nothing registers it by default, and
// the orchestrators' routing tables never select it on their own. Each
// query runs in a fresh session; answers carry a fixed moderate confidence
// since the model reports none.
type LanguageNode struct {
	*Core

	provider    Provider
	temperature float32
	confidence  float64
}

// NewLanguageNode creates a language node for the given tenant.
func NewLanguageNode(tenant string) *LanguageNode {
	return &LanguageNode{
		Core:        NewCore("language", []string{"free-form-answering"}, tenant),
		temperature: zyn.DefaultTemperatureDeterministic,
		confidence:  0.6,
	}
}

// WithNodeProvider pins a provider to this node, taking precedence over the
// context and global providers.
func (l *LanguageNode) WithNodeProvider(p Provider) *LanguageNode {
	l.provider = p
	return l
}

// WithTemperature overrides the synapse temperature.
func (l *LanguageNode) WithTemperature(temp float32) *LanguageNode {
	l.temperature = temp
	return l
}

// Process sends input["query"] through the synapse and emits a HYPOTHESIS
// node: a model-produced answer is a hypothesis, not a verified fact.
func (l *LanguageNode) Process(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	query, ok := input["query"].(string)
	if !ok {
		return nil, fmt.Errorf("language node: input missing string query")
	}

	provider, err := ResolveProvider(ctx, l.provider)
	if err != nil {
		return nil, err
	}

	synapse, err := zyn.Transform("Answer the question directly and concisely", provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform synapse: %w", err)
	}

	answer, err := synapse.FireWithInput(ctx, zyn.NewSession(), zyn.TransformInput{
		Text:        query,
		Style:       "Answer in one or two plain sentences. Say so when unsure.",
		Temperature: l.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("transform synapse execution failed: %w", err)
	}

	reflection, rerr := l.NewReflection(SelfQuestion, "model answer is unverified", nil, nil)
	if rerr != nil {
		return nil, rerr
	}

	node, nerr := l.NewNode(ctx, NodeSpec{
		Type:        NodeHypothesis,
		State:       NodeState{Confidence: l.confidence, Salience: 0.5},
		Reflections: []NodeReflection{reflection},
		Triggers: []NodeTrigger{
			NewTrigger("language_query", "", "model consulted"),
		},
		Data: map[string]any{
			"question": query,
			"answer":   answer,
			"model":    provider.Name(),
		},
	})
	if nerr != nil {
		return nil, nerr
	}

	return &Result{
		Answer:         answer,
		Confidence:     l.confidence,
		Node:           node,
		ProcessingTime: time.Since(start),
		Extra:          map[string]any{"query": query, "model": provider.Name()},
	}, nil
}

// ValidateOutput checks one of this node's own prior outputs structurally.
func (l *LanguageNode) ValidateOutput(result *Result) bool {
	if result == nil || result.Answer == "" {
		return false
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return false
	}
	if result.Node == nil || result.Node.Type != NodeHypothesis {
		return false
	}
	return l.ValidateNode(result.Node)
}
