package dialogue_test

import (
	"testing"
	"time"

	"github.com/marlowe-ai/convopipe/dialogue"
	"github.com/marlowe-ai/convopipe/dialogue/store"
)

// A session swept out of memory comes back with its turn count and state
// intact once a store is configured, instead of starting over.
func TestRegistryRestoresFromStoreAfterSweep(t *testing.T) {
	s := store.NewMemoryStore()
	r := dialogue.NewRegistry(20*time.Millisecond, 10*time.Millisecond, nil)
	r.SetStore(s)
	defer r.Stop()

	fsm := r.GetOrCreate("s1")
	fsm.StartNewTurn("r1")
	fsm.UpdateSlot("topic", "weather")

	deadline := time.Now().Add(500 * time.Millisecond)
	for r.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Count() != 0 {
		t.Fatal("expected the sweeper to have evicted the session")
	}

	restored := r.GetOrCreate("s1")
	if restored.State() != dialogue.StatePreprocessing {
		t.Errorf("expected restored state preprocessing, got %s", restored.State())
	}
	if got, ok := restored.GetSlot("topic"); !ok || got != "weather" {
		t.Errorf("expected restored slot topic=weather, got %v, ok=%v", got, ok)
	}
}

// Remove deletes the persisted snapshot too, so a later GetOrCreate starts
// a genuinely fresh session rather than resurrecting the removed one.
func TestRegistryRemoveDeletesFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	r := dialogue.NewRegistry(time.Hour, time.Hour, nil)
	r.SetStore(s)
	defer r.Stop()

	fsm := r.GetOrCreate("s1")
	fsm.StartNewTurn("r1")
	r.Remove("s1")

	fresh := r.GetOrCreate("s1")
	if fresh.GetMetrics().TurnCount != 0 {
		t.Errorf("expected a fresh session with turn_count = 0, got %d", fresh.GetMetrics().TurnCount)
	}
}
