package dialogue

import (
	"testing"
	"time"
)

func TestRegistryGetOrCreateIsStableAcrossCalls(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour, nil)
	defer r.Stop()

	f1 := r.GetOrCreate("s1")
	f2 := r.GetOrCreate("s1")
	if f1 != f2 {
		t.Error("expected the same FSM instance for repeated GetOrCreate calls")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 resident session, got %d", r.Count())
	}
}

func TestRegistryWithSessionSerializesAccess(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour, nil)
	defer r.Stop()

	r.WithSession("s1", func(f *FSM) {
		f.StartNewTurn("r1")
	})
	r.WithSession("s1", func(f *FSM) {
		if f.State() != StatePreprocessing {
			t.Errorf("expected state to persist across WithSession calls, got %s", f.State())
		}
	})
}

func TestRegistrySweepRemovesStaleSessions(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, 10*time.Millisecond, nil)
	defer r.Stop()

	r.GetOrCreate("stale")
	time.Sleep(100 * time.Millisecond)

	if r.Count() != 0 {
		t.Errorf("expected stale session to be swept, got count %d", r.Count())
	}
}

func TestRegistrySweepSparesTouchedSessions(t *testing.T) {
	r := NewRegistry(200*time.Millisecond, 20*time.Millisecond, nil)
	defer r.Stop()

	f := r.GetOrCreate("active")
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 6; i++ {
			<-ticker.C
			f.UpdateSlot("ping", i)
		}
		close(done)
	}()
	<-done

	if r.Count() != 1 {
		t.Errorf("expected actively-touched session to survive sweeps, got count %d", r.Count())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour, nil)
	defer r.Stop()

	r.GetOrCreate("s1")
	r.Remove("s1")
	if r.Count() != 0 {
		t.Errorf("expected session removed, got count %d", r.Count())
	}
}
