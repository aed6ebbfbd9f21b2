package emit

import "context"

// Emitter receives and processes observability events from pipeline execution.
//
// Implementations should be:
//   - non-blocking: never slow down a turn waiting on a backend
//   - thread-safe: stages run sequentially within a turn but turns run
//     concurrently across sessions
//   - resilient: a failing backend must never panic or abort a turn
type Emitter interface {
	// Emit sends a single observability event. Must not block or panic.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order.
	// Returns an error only for catastrophic configuration failures;
	// per-event delivery failures should be swallowed internally.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered, or ctx expires.
	Flush(ctx context.Context) error
}
