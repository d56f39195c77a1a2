package matriz

import (
	"context"
	"math"
	"testing"
)

func findCheck(t *testing.T, report *ValidationReport, name string) CheckOutcome {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %q check in report", name)
	return CheckOutcome{}
}

func TestValidatorPassesCorrectMath(t *testing.T) {
	mathNode := NewMathNode("tenant-test")
	validator := NewValidatorNode("tenant-test")

	result, err := mathNode.Process(context.Background(), Input{"query": "2 + 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Passed {
		t.Errorf("correct arithmetic should pass, score %v", report.Score)
	}
	if m := findCheck(t, report, "mathematical"); !m.Applicable || !m.Passed {
		t.Errorf("mathematical check should re-evaluate and pass: %+v", m)
	}
	if report.Node == nil || report.Node.Type != NodeValidation {
		t.Fatal("expected a VALIDATION node")
	}
	if len(report.Node.Links) != 1 || report.Node.Links[0].TargetNodeID != result.Node.ID {
		t.Error("expected an evidence link back to the validated node")
	}
	if len(report.Node.Reflections) != 1 || report.Node.Reflections[0].ReflectionType != Affirmation {
		t.Error("expected an affirmation reflection on a pass")
	}
}

func TestValidatorCatchesTamperedMath(t *testing.T) {
	mathNode := NewMathNode("tenant-test")
	validator := NewValidatorNode("tenant-test")

	result, err := mathNode.Process(context.Background(), Input{"query": "2 + 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result.Answer = "5"
	result.Extra["result"] = 5.0
	result.Confidence = 0.3 // low-confidence claim: a math break is critical

	report, err := validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := findCheck(t, report, "mathematical"); !m.Applicable || m.Passed {
		t.Errorf("mathematical check should catch the tampered value: %+v", m)
	}
	if report.Passed {
		t.Error("tampered low-confidence claim should fail validation")
	}
	if len(report.Node.Reflections) != 1 || report.Node.Reflections[0].ReflectionType != Regret {
		t.Error("expected a regret reflection on a failure")
	}
}

func TestValidatorHonestUnknownPasses(t *testing.T) {
	facts := NewFactNode("tenant-test")
	validator := NewValidatorNode("tenant-test")

	result, err := facts.Process(context.Background(), Input{"query": "xyzzy plugh frobnicate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Passed {
		t.Errorf("an honestly reported unknown should pass, score %v", report.Score)
	}
	if l := findCheck(t, report, "logical"); !l.Passed {
		t.Errorf("low confidence on an unknown answer is consistent: %+v", l)
	}
}

func TestValidatorFlagsOverconfidentUnknown(t *testing.T) {
	facts := NewFactNode("tenant-test")
	validator := NewValidatorNode("tenant-test")

	result, err := facts.Process(context.Background(), Input{"query": "xyzzy plugh frobnicate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result.Confidence = 0.9

	report, err := validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l := findCheck(t, report, "logical"); l.Passed {
		t.Errorf("high confidence on an unknown answer is inconsistent: %+v", l)
	}
}

func TestValidatorFactualCheck(t *testing.T) {
	facts := NewFactNode("tenant-test")
	validator := NewValidatorNode("tenant-test")

	result, err := facts.Process(context.Background(), Input{"query": "What is the capital of France?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f := findCheck(t, report, "factual"); !f.Applicable || !f.Passed {
		t.Errorf("factual check should match the known-facts table: %+v", f)
	}

	// Same question, wrong answer: factual fails but is not critical on its own.
	result.Answer = "The capital of France is Berlin."
	report, err = validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f := findCheck(t, report, "factual"); !f.Applicable || f.Passed {
		t.Errorf("factual check should reject the wrong capital: %+v", f)
	}
	if report.Score >= 1.0 {
		t.Errorf("a failed check should lower the score, got %v", report.Score)
	}
}

func TestValidatorStructuralFailureIsCritical(t *testing.T) {
	validator := NewValidatorNode("tenant-test")

	if validator.ValidateOutput(nil) {
		t.Error("nil result must not validate")
	}

	mathNode := NewMathNode("tenant-test")
	result, err := mathNode.Process(context.Background(), Input{"query": "2 + 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result.Answer = ""

	report, err := validator.Validate(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Passed {
		t.Error("a structural failure overrides the weighted score")
	}
}

func TestWeightedScore(t *testing.T) {
	all := []CheckOutcome{
		{Name: "structural", Applicable: true, Passed: true},
		{Name: "mathematical", Applicable: true, Passed: true},
		{Name: "factual", Applicable: true, Passed: true},
		{Name: "logical", Applicable: true, Passed: true},
	}
	if got := weightedScore(all); got != 1.0 {
		t.Errorf("agreeing passes should cap at 1.0, got %v", got)
	}

	mixed := []CheckOutcome{
		{Name: "structural", Applicable: true, Passed: true},
		{Name: "logical", Applicable: true, Passed: false},
	}
	want := 0.95 / (0.95 + 0.60)
	if got := weightedScore(mixed); math.Abs(got-want) > 1e-12 {
		t.Errorf("weightedScore(mixed) = %v, want %v", got, want)
	}

	if got := weightedScore([]CheckOutcome{{Name: "factual"}}); got != 0 {
		t.Errorf("no applicable checks should score 0, got %v", got)
	}
}

func TestValidatorProcess(t *testing.T) {
	mathNode := NewMathNode("tenant-test")
	validator := NewValidatorNode("tenant-test")

	result, err := mathNode.Process(context.Background(), Input{"query": "3 * 7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := validator.Process(context.Background(), Input{"result": result})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "output passed validation" {
		t.Errorf("unexpected answer: %q", out.Answer)
	}
	if out.Node == nil || out.Node.Type != NodeValidation {
		t.Fatal("expected a VALIDATION node")
	}

	if _, err := validator.Process(context.Background(), Input{}); err == nil {
		t.Error("expected error for missing result input")
	}
}
