package relay

import "testing"

func TestThrottleCapsPerUser(t *testing.T) {
	th := newThrottle(2)
	if !th.tryAcquire("u1") || !th.tryAcquire("u1") {
		t.Fatal("expected acquires below the ceiling to succeed")
	}
	if th.tryAcquire("u1") {
		t.Fatal("expected acquire at the ceiling to fail")
	}
	// A different user has its own budget.
	if !th.tryAcquire("u2") {
		t.Fatal("expected unrelated user to be admitted")
	}
}

func TestThrottleReleaseFreesSlot(t *testing.T) {
	th := newThrottle(1)
	if !th.tryAcquire("u1") {
		t.Fatal("expected first acquire to succeed")
	}
	th.release("u1")
	if !th.tryAcquire("u1") {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestThrottleReleaseNeverGoesNegative(t *testing.T) {
	th := newThrottle(1)
	th.release("ghost")
	if got := th.count("ghost"); got != 0 {
		t.Fatalf("expected count 0 after stray release, got %d", got)
	}
	if !th.tryAcquire("ghost") {
		t.Fatal("expected acquire to succeed after stray release")
	}
	th.release("ghost")
	if got := th.count("ghost"); got != 0 {
		t.Fatalf("expected entry dropped at zero, got %d", got)
	}
}
