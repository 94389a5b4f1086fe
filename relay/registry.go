package relay

import (
	"errors"
	"sync"
)

// ErrCapacityExceeded is returned when creating a session would push the
// registry past its configured bound.
var ErrCapacityExceeded = errors.New("session registry at capacity")

// registry is the process-wide session map. The capacity check and insert
// are one atomic composite under the mutex.
type registry struct {
	maxSessions   int
	maxMessageLen int

	mu       sync.Mutex
	sessions map[string]*session
}

func newRegistry(maxSessions int, maxMessageLen int) *registry {
	return &registry{
		maxSessions:   maxSessions,
		maxMessageLen: maxMessageLen,
		sessions:      make(map[string]*session),
	}
}

// getOrCreate returns the existing session for id, or inserts a new one
// when the registry has room. Existing sessions are returned even at
// capacity; only new inserts are rejected.
func (r *registry) getOrCreate(id string) (*session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false, nil
	}
	if len(r.sessions) >= r.maxSessions {
		return nil, false, ErrCapacityExceeded
	}
	s := newSession(id, r.maxMessageLen)
	r.sessions[id] = s
	return s, true, nil
}

func (r *registry) get(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// remove is idempotent; handlers and the sweeper may race on it.
func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// all snapshots the live sessions; the sweeper and the status endpoint
// iterate outside the registry lock.
func (r *registry) all() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
