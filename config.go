package matriz

import "time"

// StageConfig is one stage's latency budget and criticality. A critical
// stage's failure aborts the pipeline; a non-critical stage's failure is
// recorded and skipped.
type StageConfig struct {
	Timeout  time.Duration
	Critical bool
}

// DefaultTotalTimeout is the overall pipeline budget.
const DefaultTotalTimeout = 250 * time.Millisecond

// DefaultStageConfigs returns the per-stage defaults. Callers may mutate the
// returned map freely; each call returns a fresh copy.
func DefaultStageConfigs() map[Stage]StageConfig {
	return map[Stage]StageConfig{
		StageIntent:     {Timeout: 50 * time.Millisecond, Critical: true},
		StageDecision:   {Timeout: 20 * time.Millisecond, Critical: true},
		StageProcessing: {Timeout: 100 * time.Millisecond, Critical: true},
		StageValidation: {Timeout: 30 * time.Millisecond, Critical: false},
		StageReflection: {Timeout: 20 * time.Millisecond, Critical: false},
	}
}
