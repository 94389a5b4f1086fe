package relay

import "sync"

// throttle caps concurrent connections per user ID. Every successful
// tryAcquire must be matched by exactly one release on handler return,
// regardless of failure path.
type throttle struct {
	limit int

	mu     sync.Mutex
	counts map[string]int
}

func newThrottle(limit int) *throttle {
	return &throttle{limit: limit, counts: make(map[string]int)}
}

// tryAcquire increments the user's count iff it is below the ceiling.
func (t *throttle) tryAcquire(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[userID] >= t.limit {
		return false
	}
	t.counts[userID]++
	return true
}

// release decrements the user's count, never below zero, and drops the
// map entry at zero so idle users do not accumulate.
func (t *throttle) release(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.counts[userID]
	if n <= 1 {
		delete(t.counts, userID)
		return
	}
	t.counts[userID] = n - 1
}

// count reports the user's current concurrent connections.
func (t *throttle) count(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID]
}
