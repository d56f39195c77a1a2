package matriz

import "github.com/zoobzio/capitan"

// Signal definitions for orchestration events.
// Signals follow the pattern: matriz.<entity>.<event>.
var (
	// Query lifecycle signals.
	QueryReceived = capitan.NewSignal(
		"matriz.query.received",
		"Query entered an orchestrator pipeline",
	)
	QueryCompleted = capitan.NewSignal(
		"matriz.query.completed",
		"Query pipeline finished with an answer",
	)
	QueryFailed = capitan.NewSignal(
		"matriz.query.failed",
		"Query pipeline aborted with a structured error",
	)

	// Stage execution signals.
	StageStarted = capitan.NewSignal(
		"matriz.stage.started",
		"Pipeline stage began execution",
	)
	StageCompleted = capitan.NewSignal(
		"matriz.stage.completed",
		"Pipeline stage finished successfully",
	)
	StageFailed = capitan.NewSignal(
		"matriz.stage.failed",
		"Pipeline stage failed or timed out",
	)
	StageSkipped = capitan.NewSignal(
		"matriz.stage.skipped",
		"Non-critical stage skipped after failure",
	)

	// Node lifecycle signals.
	NodeCreated = capitan.NewSignal(
		"matriz.node.created",
		"Audit node appended to a producer's history",
	)
	NodeRegistered = capitan.NewSignal(
		"matriz.node.registered",
		"Cognitive node registered with an orchestrator",
	)

	// Health tracking signals.
	HealthUpdated = capitan.NewSignal(
		"matriz.health.updated",
		"Rolling health record recomputed for a node",
	)
	NodeRerouted = capitan.NewSignal(
		"matriz.node.rerouted",
		"Unhealthy node bypassed in favor of a lower-latency alternative",
	)
)

// Field keys for matriz event data.
var (
	// Query metadata.
	FieldQuery   = capitan.NewStringKey("query")
	FieldIntent  = capitan.NewStringKey("intent")
	FieldTraceID = capitan.NewStringKey("trace_id")
	FieldAnswer  = capitan.NewStringKey("answer")

	// Node metadata.
	FieldNodeID     = capitan.NewStringKey("node_id")
	FieldNodeType   = capitan.NewStringKey("node_type")
	FieldNodeName   = capitan.NewStringKey("node_name")
	FieldTenant     = capitan.NewStringKey("tenant")
	FieldConfidence = capitan.NewFloat32Key("confidence")

	// Stage metadata.
	FieldStage    = capitan.NewStringKey("stage")
	FieldCritical = capitan.NewStringKey("critical") // "true"/"false"
	FieldTimeout  = capitan.NewStringKey("timeout")  // "true"/"false"

	// Counters and timing.
	FieldNodeCount     = capitan.NewIntKey("node_count")
	FieldStageDuration = capitan.NewDurationKey("stage_duration")
	FieldTotalDuration = capitan.NewDurationKey("total_duration")
	FieldP95           = capitan.NewDurationKey("p95")
	FieldSuccesses     = capitan.NewIntKey("successes")
	FieldFailures      = capitan.NewIntKey("failures")

	// Error information.
	FieldError = capitan.NewErrorKey("error")
)
