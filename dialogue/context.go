package dialogue

import (
	"time"

	"github.com/marlowe-ai/convopipe/emit"
)

// DialogueContext is the persistable snapshot of one session's FSM state,
// used by dialogue/store implementations to survive process restarts.
type DialogueContext struct {
	SessionID             string         `json:"session_id"`
	RequestID             string         `json:"request_id"`
	UserID                string         `json:"user_id,omitempty"`
	State                 State          `json:"state"`
	TurnCount             int            `json:"turn_count"`
	LastIntent            string         `json:"last_intent,omitempty"`
	ConfirmedSlots        map[string]any `json:"confirmed_slots"`
	PendingClarification  bool           `json:"pending_clarification"`
	ClarificationAttempts int            `json:"clarification_attempts"`
	LastActivityAt        time.Time      `json:"last_activity_at"`
}

// Snapshot captures the FSM's current state for persistence.
func (f *FSM) Snapshot() DialogueContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots := make(map[string]any, len(f.confirmedSlots))
	for k, v := range f.confirmedSlots {
		slots[k] = v
	}
	return DialogueContext{
		SessionID:             f.sessionID,
		RequestID:             f.requestID,
		UserID:                f.userID,
		State:                 f.state,
		TurnCount:             f.turnCount,
		LastIntent:            f.lastIntent,
		ConfirmedSlots:        slots,
		PendingClarification:  f.pendingClarification,
		ClarificationAttempts: f.clarificationAttempts,
		LastActivityAt:        f.lastActivityAt,
	}
}

// Restore rebuilds an FSM in-memory from a persisted snapshot, for
// resuming a session after a process restart.
func Restore(ctx DialogueContext, emitter emit.Emitter) *FSM {
	f := New(ctx.SessionID, emitter)
	f.requestID = ctx.RequestID
	f.userID = ctx.UserID
	f.state = ctx.State
	f.turnCount = ctx.TurnCount
	f.lastIntent = ctx.LastIntent
	f.confirmedSlots = ctx.ConfirmedSlots
	if f.confirmedSlots == nil {
		f.confirmedSlots = make(map[string]any)
	}
	f.pendingClarification = ctx.PendingClarification
	f.clarificationAttempts = ctx.ClarificationAttempts
	f.lastActivityAt = ctx.LastActivityAt
	return f
}
