package matriz

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UnknownAnswer is returned when no knowledge-base entry scores above the
// match threshold.
const UnknownAnswer = "I don't know the answer to that question."

// factMatchThreshold is the minimum blended score for a knowledge-base hit.
const factMatchThreshold = 0.4

// FactNode answers questions from a small fixed in-memory knowledge base.
// Questions are normalized, scored against every entry by a blend of exact
// match, sequence similarity and keyword overlap, and the best entry above
// the threshold wins.
type FactNode struct {
	*Core
	entries []factEntry
}

type factEntry struct {
	question   string
	normalized string
	keywords   []string
	answer     string
}

// knowledgeBase is the fixed question-answer table the fact node serves.
var knowledgeBase = map[string]string{
	"what is the capital of france":                    "The capital of France is Paris.",
	"what is the capital of germany":                   "The capital of Germany is Berlin.",
	"what is the capital of japan":                     "The capital of Japan is Tokyo.",
	"what is the capital of italy":                     "The capital of Italy is Rome.",
	"what is the capital of spain":                     "The capital of Spain is Madrid.",
	"what is the largest ocean":                        "The Pacific Ocean is the largest ocean on Earth.",
	"what is the longest river":                        "The Nile is generally considered the longest river in the world.",
	"what is the tallest mountain":                     "Mount Everest is the tallest mountain above sea level.",
	"what is the largest desert":                       "The Antarctic Desert is the largest desert on Earth.",
	"when did world war two end":                       "World War Two ended in 1945.",
	"when did world war one start":                     "World War One started in 1914.",
	"who was the first president of the united states": "George Washington was the first president of the United States.",
	"who wrote romeo and juliet":                       "Romeo and Juliet was written by William Shakespeare.",
	"who painted the mona lisa":                        "The Mona Lisa was painted by Leonardo da Vinci.",
	"what is the speed of light":                       "The speed of light is approximately 299,792,458 meters per second.",
	"what is the boiling point of water":               "Water boils at 100 degrees Celsius at sea level.",
	"what is the freezing point of water":              "Water freezes at 0 degrees Celsius.",
	"what is the chemical symbol for gold":             "The chemical symbol for gold is Au.",
	"what is the chemical symbol for water":            "The chemical formula for water is H2O.",
	"how many planets are in the solar system":         "There are eight planets in the solar system.",
	"what is the closest planet to the sun":            "Mercury is the closest planet to the Sun.",
	"what is the square root of sixteen":               "The square root of sixteen is four.",
	"what is the value of pi":                          "Pi is approximately 3.14159.",
	"how many continents are there":                    "There are seven continents.",
	"what is the smallest prime number":                "The smallest prime number is 2.",
}

// NewFactNode creates a fact lookup node for the given tenant.
func NewFactNode(tenant string) *FactNode {
	n := &FactNode{
		Core: NewCore("facts", []string{"fact-lookup", "question-answering"}, tenant),
	}
	for q, a := range knowledgeBase {
		norm := normalizeQuestion(q)
		n.entries = append(n.entries, factEntry{
			question:   q,
			normalized: norm,
			keywords:   strings.Fields(norm),
			answer:     a,
		})
	}
	return n
}

// Process answers the question in input["query"], emitting a MEMORY node
// with an affirmation reflection on a hit or a regret reflection on a miss.
func (f *FactNode) Process(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	question, ok := input["query"].(string)
	if !ok {
		return nil, fmt.Errorf("fact node: input missing string query")
	}

	answer, score, matched := f.lookup(question)

	reflectionType := Affirmation
	cause := "knowledge base match"
	confidence := score
	if !matched {
		answer = UnknownAnswer
		reflectionType = Regret
		cause = "no knowledge base entry above threshold"
		confidence = 0.1
	}

	reflection, rerr := f.NewReflection(reflectionType, cause, nil, nil)
	if rerr != nil {
		return nil, rerr
	}

	node, nerr := f.NewNode(ctx, NodeSpec{
		Type:        NodeMemory,
		State:       NodeState{Confidence: confidence, Salience: 0.7},
		Reflections: []NodeReflection{reflection},
		Triggers: []NodeTrigger{
			NewTrigger("fact_lookup", "", "knowledge base queried"),
		},
		Data: map[string]any{
			"question":    question,
			"answer":      answer,
			"match_score": score,
			"matched":     matched,
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
		Extra:          map[string]any{"query": question, "match_score": score},
	}, nil
}

// ValidateOutput checks one of this node's own prior outputs structurally.
func (f *FactNode) ValidateOutput(result *Result) bool {
	if result == nil || result.Answer == "" {
		return false
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return false
	}
	if result.Node == nil || result.Node.Type != NodeMemory {
		return false
	}
	return f.ValidateNode(result.Node)
}

// lookup scores every entry against the normalized question and returns the
// best answer, its score, and whether it cleared the threshold.
func (f *FactNode) lookup(question string) (string, float64, bool) {
	norm := normalizeQuestion(question)
	words := strings.Fields(norm)

	best := -1.0
	bestAnswer := ""
	for _, entry := range f.entries {
		score := scoreEntry(norm, words, entry)
		if score > best {
			best = score
			bestAnswer = entry.answer
		}
	}
	if best < factMatchThreshold {
		return "", best, false
	}
	return bestAnswer, best, true
}

// scoreEntry blends exact match, sequence similarity, and keyword overlap.
func scoreEntry(norm string, words []string, entry factEntry) float64 {
	if norm == entry.normalized {
		return 1.0
	}
	ratio := similarity(norm, entry.normalized)
	overlap := keywordOverlap(words, entry.keywords)
	return 0.6*ratio + 0.4*overlap
}

// stopWords is the minimal list dropped during question normalization.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"of": {}, "in": {}, "on": {}, "to": {}, "do": {}, "does": {}, "did": {},
	"what": {}, "which": {}, "there": {},
}

// normalizeQuestion lowercases, strips punctuation, drops stop words and
// collapses whitespace. If filtering leaves nothing, the unfiltered form is
// kept so degenerate questions still score against something.
func normalizeQuestion(q string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(q) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	all := strings.Fields(b.String())

	var kept []string
	for _, w := range all {
		if _, drop := stopWords[w]; !drop {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = all
	}
	return strings.Join(kept, " ")
}

// keywordOverlap is the Jaccard overlap of two word sets.
func keywordOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for _, w := range a {
		union[w] = struct{}{}
	}
	shared := 0
	for _, w := range b {
		if _, ok := set[w]; ok {
			shared++
		}
		union[w] = struct{}{}
	}
	return float64(shared) / float64(len(union))
}

// similarity is a sequence-similarity ratio: twice the longest common
// subsequence length over the combined length, in [0,1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Single-row LCS table.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}
