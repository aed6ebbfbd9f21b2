// Package emit provides event emission and observability for pipeline execution.
package emit

// Event represents an observability event emitted during the processing of
// one conversational turn.
//
// Events give a structured, level-tagged view into pipeline behaviour:
//   - stage start/complete/timeout/abort
//   - clarification decisions
//   - FSM transitions
//   - request-level start/complete/error
//
// Events are emitted to an Emitter which can:
//   - log to stdout/stderr or a file
//   - export OpenTelemetry spans
//   - buffer in memory for tests
type Event struct {
	// RequestID identifies the turn that emitted this event.
	RequestID string

	// SessionID identifies the dialogue session the turn belongs to.
	SessionID string

	// Stage names the pipeline stage this event concerns (preprocess, nlu,
	// retrieval, rerank, generation, postprocess). Empty for request-level
	// events (started, completed, error).
	Stage string

	// Level is one of "debug", "info", "warn", "error".
	Level string

	// Msg is a short machine-matchable event name, e.g. "pipeline_started",
	// "stage_preprocess_complete", "clarification_triggered".
	Msg string

	// Meta carries event-specific structured data, e.g. duration_ms, error,
	// tokens, clarification_attempt.
	Meta map[string]any
}

// Log levels used by Event.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)
