package relay

import (
	"fmt"
	"testing"
)

func TestGetOrCreateReusesExisting(t *testing.T) {
	r := newRegistry(10, 5000)
	s1, created, err := r.getOrCreate("a")
	if err != nil || !created {
		t.Fatalf("getOrCreate(a) = (created=%v, err=%v), want fresh session", created, err)
	}
	s2, created, err := r.getOrCreate("a")
	if err != nil || created {
		t.Fatalf("second getOrCreate(a) = (created=%v, err=%v), want existing", created, err)
	}
	if s1 != s2 {
		t.Fatal("expected the same session instance")
	}
	if r.len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.len())
	}
}

func TestGetOrCreateRejectsNewAtCapacity(t *testing.T) {
	r := newRegistry(2, 5000)
	for i := 0; i < 2; i++ {
		if _, _, err := r.getOrCreate(fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("getOrCreate(s%d) failed: %v", i, err)
		}
	}
	if _, _, err := r.getOrCreate("s2"); err != ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	// Joins into existing sessions still succeed at capacity.
	if _, created, err := r.getOrCreate("s0"); err != nil || created {
		t.Fatalf("expected existing session at capacity, got (created=%v, err=%v)", created, err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := newRegistry(2, 5000)
	if _, _, err := r.getOrCreate("a"); err != nil {
		t.Fatalf("getOrCreate(a) failed: %v", err)
	}
	r.remove("a")
	r.remove("a")
	if r.len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.len())
	}
	if r.get("a") != nil {
		t.Fatal("expected get after remove to return nil")
	}
}
