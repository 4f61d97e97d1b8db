package breaker

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRegistry_ForProviderMemoizes(t *testing.T) {
	r := NewRegistry(5, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	first := r.ForProvider("musicdex")
	second := r.ForProvider("musicdex")

	if first != second {
		t.Error("ForProvider should return the same breaker for the same key")
	}

	other := r.ForProvider("streamcatalog")
	if other == first {
		t.Error("Different providers should get different breakers")
	}
}

func TestRegistry_SharedFailureState(t *testing.T) {
	r := NewRegistry(2, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	r.ForProvider("musicdex").RecordFailure()
	r.ForProvider("musicdex").RecordFailure()

	if !r.ForProvider("musicdex").IsOpen() {
		t.Error("Failure state should be shared across call sites for the same key")
	}
}

func TestRegistry_CustomOnlyEffectiveOnFirstAccess(t *testing.T) {
	r := NewRegistry(5, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	b := r.Custom("flaky", 1, time.Minute)
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("Custom threshold of 1 should open after a single failure")
	}
	b.Reset()

	// Later calls with different parameters return the existing instance.
	again := r.Custom("flaky", 100, time.Hour)
	if again != b {
		t.Error("Custom should return the already-created breaker for a known key")
	}
	again.RecordFailure()
	if !again.IsOpen() {
		t.Error("Original threshold should still apply on subsequent requests")
	}
}

func TestRegistry_CustomForKey(t *testing.T) {
	r := NewRegistry(5, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	b := r.CustomForKey("release-feed:alpha", 1, time.Minute)
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("Custom threshold of 1 should open after a single failure")
	}

	// Later calls with different parameters return the existing instance,
	// whether they go through CustomForKey or ForKey.
	if again := r.CustomForKey("release-feed:alpha", 100, time.Hour); again != b {
		t.Error("CustomForKey should return the already-created breaker for a known key")
	}
	if again := r.ForKey("release-feed:alpha"); again != b {
		t.Error("ForKey should share the breaker CustomForKey created")
	}
}

func TestRegistry_ForKeyMemoizes(t *testing.T) {
	r := NewRegistry(5, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	first := r.ForKey("release-feed:alpha")
	second := r.ForKey("release-feed:alpha")

	if first != second {
		t.Error("ForKey should return the same breaker for the same key")
	}
}

func TestRegistry_SweepEvictsIdleNamedBreakers(t *testing.T) {
	r := NewRegistry(5, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	b := r.ForKey("release-feed:alpha")
	b.RecordFailure()

	// Age the entry past the idle timeout and sweep.
	r.mutex.Lock()
	if entry, exists := r.named.Get("release-feed:alpha"); exists {
		entry.lastUsed = time.Now().Add(-16 * time.Minute)
	}
	r.mutex.Unlock()

	r.performSweep()

	// A fresh breaker is created on next access: failure history is lost.
	recreated := r.ForKey("release-feed:alpha")
	if recreated == b {
		t.Error("Swept breaker should be recreated, not reused")
	}
	if recreated.Failures() != 0 {
		t.Errorf("Recreated breaker should start clean, got %d failures", recreated.Failures())
	}
}

func TestRegistry_OpenCount(t *testing.T) {
	r := NewRegistry(1, 5*time.Minute, zap.NewNop())
	defer r.Stop()

	r.ForProvider("musicdex").RecordFailure()
	r.ForKey("release-feed:alpha").RecordFailure()
	r.ForProvider("streamcatalog")

	if got := r.OpenCount(); got != 2 {
		t.Errorf("Expected 2 open breakers, got %d", got)
	}
}
