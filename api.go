// Package matriz implements a small cognitive orchestration core: queries
// route through a fixed pipeline of cognitive nodes, and every step is
// recorded as an immutable, schema-bound audit node.
//
// # Core Types
//
// The package is built around three concepts:
//
//   - [Node] - An immutable audit record of one processing step, carrying
//     state, provenance, links, triggers and reflections
//   - [CognitiveNode] - The capability every processing unit exposes
//     (Process plus a self-check), with shared machinery in [Core]
//   - [Graph] - The in-process node index causal chains are rebuilt from
//
// # Cognitive Nodes
//
// Three nodes ship with the package, plus one optional extra:
//
//   - [MathNode] - Restricted-grammar arithmetic evaluation
//   - [FactNode] - Fixed knowledge-base question answering
//   - [ValidatorNode] - Cross-checks other nodes' outputs with structural,
//     mathematical, factual and logical strategies
//   - [LanguageNode] - Optional LLM-backed answering via zyn (never part of
//     the default routing)
//
// # Orchestrators
//
// [Orchestrator] drives a query synchronously through intent classification,
// node selection, processing, and optional validation and reflection.
//
// [BoundedOrchestrator] runs the same pipeline with a latency budget and a
// criticality flag per stage, an overall budget around the whole run, and
// per-node health tracking that reroutes away from failing nodes:
//
//	orch := matriz.NewBoundedOrchestrator("tenant-a",
//	    matriz.WithTotalTimeout(500*time.Millisecond),
//	)
//	orch.RegisterNode("math", matriz.NewMathNode("tenant-a"))
//	orch.RegisterNode("facts", matriz.NewFactNode("tenant-a"))
//	orch.RegisterNode("validator", matriz.NewValidatorNode("tenant-a"))
//	resp, err := orch.ProcessQuery(ctx, "2 + 2")
//
// # Pipeline Helpers
//
// matriz wraps pipz connectors for audit-node processing:
// [Do], [Transform], [Effect], [Sequence], [Filter], [Fallback], [Retry],
// [Backoff], [Timeout], [Handle].
//
// # Archive
//
// The in-process graph and histories grow for the life of the process. The
// [Archive] interface and its [SoyArchive] implementation persist nodes and
// traces to Postgres and provide the age-based retention the in-process
// structures deliberately lack. [ArchiveSink] drains nodes with backoff.
//
// # Observability
//
// matriz emits capitan signals throughout execution. See signals.go for the
// complete list, including QueryReceived, StageCompleted, NodeCreated and
// HealthUpdated.
package matriz
