package schemawatch

import (
	"testing"
	"time"
)

func TestWatcher_ShouldFireDebounces(t *testing.T) {
	w := &Watcher{Debounce: 50 * time.Millisecond}

	if !w.shouldFire() {
		t.Fatal("first call should fire")
	}
	if w.shouldFire() {
		t.Fatal("immediate second call should be debounced")
	}

	time.Sleep(60 * time.Millisecond)
	if !w.shouldFire() {
		t.Fatal("call after debounce window elapsed should fire")
	}
}

func TestReconcileViews(t *testing.T) {
	if err := ReconcileViews(); err != nil {
		t.Fatalf("ReconcileViews returned error: %v", err)
	}
}
