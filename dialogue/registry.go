package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/marlowe-ai/convopipe/emit"
)

// sessionStore is the subset of dialogue/store.Store the registry needs.
// Declared here rather than imported, since dialogue/store already imports
// dialogue for DialogueContext and Go forbids the cycle.
type sessionStore interface {
	SaveSession(ctx context.Context, session DialogueContext) error
	LoadSession(ctx context.Context, sessionID string) (DialogueContext, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// entry wraps one session's FSM with its own mutex, so that sessions under
// contention don't serialize on a single registry-wide lock. This
// generalizes the teacher's Engine.mu sync.RWMutex (graph/engine.go) from
// one lock protecting a whole map to one lock per map value.
type entry struct {
	mu  sync.Mutex
	fsm *FSM
}

// Registry is the process-wide session table: session_id -> FSM, created
// lazily and reaped by a periodic sweeper.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	inactivityThreshold time.Duration
	cleanupInterval     time.Duration
	emitter             emit.Emitter
	store               sessionStore

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// SetStore wires a persistence backend: GetOrCreate restores a session from
// it on a cold miss, and sweep saves a session to it just before evicting
// the in-memory FSM, so a later request for the same session id resumes
// instead of starting over. Called once at startup; nil (the default)
// means sessions live only as long as the process.
func (r *Registry) SetStore(s sessionStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// NewRegistry creates a session registry and starts its background
// sweeper goroutine.
func NewRegistry(inactivityThreshold, cleanupInterval time.Duration, emitter emit.Emitter) *Registry {
	r := &Registry{
		sessions:            make(map[string]*entry),
		inactivityThreshold: inactivityThreshold,
		cleanupInterval:     cleanupInterval,
		emitter:             emitter,
		stopSweep:           make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// GetOrCreate returns the session's FSM, creating one lazily if absent. On
// a cold miss with a store configured, it first tries to restore the
// session's last persisted snapshot rather than starting the session over.
func (r *Registry) GetOrCreate(sessionID string) *FSM {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	store := r.store
	r.mu.RUnlock()
	if ok {
		return e.fsm
	}

	fsm := r.restoreOrNew(sessionID, store)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.sessions[sessionID]; ok {
		return e.fsm
	}
	e = &entry{fsm: fsm}
	r.sessions[sessionID] = e
	return e.fsm
}

func (r *Registry) restoreOrNew(sessionID string, store sessionStore) *FSM {
	if store == nil {
		return New(sessionID, r.emitter)
	}
	ctx, err := store.LoadSession(context.Background(), sessionID)
	if err != nil {
		return New(sessionID, r.emitter)
	}
	return Restore(ctx, r.emitter)
}

// WithSession runs fn with exclusive access to the named session's FSM,
// serializing concurrent turns on the same session without blocking
// unrelated sessions.
func (r *Registry) WithSession(sessionID string, fn func(*FSM)) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if e, ok = r.sessions[sessionID]; !ok {
			e = &entry{fsm: New(sessionID, r.emitter)}
			r.sessions[sessionID] = e
		}
		r.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.fsm)
}

// Remove evicts a session unconditionally (administrative teardown),
// deleting any persisted snapshot along with the in-memory FSM.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	store := r.store
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if ok {
		e.fsm.Destroy()
		if store != nil {
			store.DeleteSession(context.Background(), sessionID)
		}
	}
}

// Count returns the number of resident sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stop halts the background sweeper.
func (r *Registry) Stop() {
	r.sweepOnce.Do(func() { close(r.stopSweep) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopSweep:
			return
		}
	}
}

// sweep removes FSMs whose last activity predates the inactivity
// threshold, persisting each one's snapshot first if a store is
// configured so a later request for the same session resumes instead of
// starting over. It takes write access only to delete entries, per the
// "write access only to remove" shared-resource contract.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.inactivityThreshold)

	r.mu.RLock()
	stale := make([]string, 0)
	for id, e := range r.sessions {
		if e.fsm.LastActivityAt().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	store := r.store
	r.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	r.mu.Lock()
	removed := make([]*entry, 0, len(stale))
	for _, id := range stale {
		if e, ok := r.sessions[id]; ok && e.fsm.LastActivityAt().Before(cutoff) {
			delete(r.sessions, id)
			removed = append(removed, e)
		}
	}
	r.mu.Unlock()

	for _, e := range removed {
		if store != nil {
			store.SaveSession(context.Background(), e.fsm.Snapshot())
		}
		e.fsm.Destroy()
		if r.emitter != nil {
			r.emitter.Emit(emit.Event{
				SessionID: e.fsm.sessionID,
				Level:     emit.LevelInfo,
				Msg:       "session_expired",
			})
		}
	}
}
