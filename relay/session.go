package relay

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"
)

// maxChatHistory bounds the per-session chat log; the oldest entries are
// dropped on overflow.
const maxChatHistory = 100

// ErrModeConflict is returned when an attach would mix the legacy
// sender/receiver slots with peer mode. The role of the first attaching
// endpoint locks the session's mode for its lifetime.
var ErrModeConflict = errors.New("session mode conflict")

type sessionMode int

const (
	modeUnset sessionMode = iota
	modePaired
	modePeers
)

type peerLink struct {
	userID string
	ep     *endpoint
}

// session is the in-memory record for one transfer: attached endpoints,
// counters, chat log, activity clock and pause flag. The mutex covers all
// state transitions and is never held across socket I/O.
type session struct {
	id            string
	metadata      map[string]any
	maxMessageLen int
	createdAt     time.Time

	mu           sync.Mutex
	mode         sessionMode
	sender       *endpoint
	receiver     *endpoint
	peers        []peerLink
	bytes        int64
	active       bool
	paused       bool
	startTime    time.Time
	endTime      time.Time
	lastActivity time.Time
	messages     []ChatMessage
}

func newSession(id string, maxMessageLen int) *session {
	now := time.Now()
	return &session{
		id:            id,
		metadata:      map[string]any{},
		maxMessageLen: maxMessageLen,
		createdAt:     now,
		lastActivity:  now,
	}
}

func (s *session) updateActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// calculateSpeed returns the cumulative transfer rate in bytes per second
// since the session went active. Wall-clock based, no moving average.
func (s *session) calculateSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speedLocked(time.Now())
}

func (s *session) speedLocked(now time.Time) float64 {
	if s.startTime.IsZero() || s.bytes <= 0 {
		return 0
	}
	elapsed := now.Sub(s.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.bytes) / elapsed
}

// addMessage appends a chat entry tagged with senderTag, truncating the
// text to the configured character cap and evicting the oldest entries
// beyond the history bound. The stored entry is returned for relaying.
func (s *session) addMessage(senderTag string, text string) ChatMessage {
	if utf8.RuneCountInString(text) > s.maxMessageLen {
		text = string([]rune(text)[:s.maxMessageLen])
	}
	msg := ChatMessage{
		Sender:    senderTag,
		Message:   text,
		Timestamp: nowStamp(),
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if n := len(s.messages); n > maxChatHistory {
		s.messages = s.messages[n-maxChatHistory:]
	}
	s.mu.Unlock()
	return msg
}

// history returns a copy of the chat log, never nil, so attach frames
// always marshal chat_history as a JSON array.
func (s *session) history() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *session) attachSender(ep *endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modePeers {
		return ErrModeConflict
	}
	s.mode = modePaired
	s.sender = ep
	return nil
}

func (s *session) attachReceiver(ep *endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modePeers {
		return ErrModeConflict
	}
	s.mode = modePaired
	s.receiver = ep
	return nil
}

// detachReceiver clears the receiver slot if ep still owns it. The sender
// handler owns session removal in paired mode.
func (s *session) detachReceiver(ep *endpoint) {
	s.mu.Lock()
	if s.receiver == ep {
		s.receiver = nil
	}
	s.mu.Unlock()
}

func (s *session) senderEndpoint() *endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender
}

func (s *session) receiverEndpoint() *endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiver
}

// attachPeer appends a peer and reports the resulting count. The first
// peer starts the transfer clock.
func (s *session) attachPeer(userID string, ep *endpoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modePaired {
		return 0, ErrModeConflict
	}
	s.mode = modePeers
	s.peers = append(s.peers, peerLink{userID: userID, ep: ep})
	s.active = true
	if len(s.peers) == 1 && s.startTime.IsZero() {
		s.startTime = time.Now()
	}
	return len(s.peers), nil
}

// detachPeer removes ep and returns the endpoints of the remaining peers
// for the departure broadcast.
func (s *session) detachPeer(ep *endpoint) (remaining []*endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.peers[:0]
	for _, p := range s.peers {
		if p.ep != ep {
			kept = append(kept, p)
		}
	}
	s.peers = kept
	remaining = make([]*endpoint, 0, len(s.peers))
	for _, p := range s.peers {
		remaining = append(remaining, p.ep)
	}
	return remaining
}

// peerEndpoints snapshots every attached peer except the given endpoint;
// sends happen outside the session lock.
func (s *session) peerEndpoints(except *endpoint) []*endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*endpoint, 0, len(s.peers))
	for _, p := range s.peers {
		if p.ep != except {
			out = append(out, p.ep)
		}
	}
	return out
}

// markActive flags the session as relaying and starts the transfer clock
// on the first activation.
func (s *session) markActive() {
	s.mu.Lock()
	s.active = true
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
	s.mu.Unlock()
}

func (s *session) markEnded() {
	s.mu.Lock()
	s.active = false
	s.endTime = time.Now()
	s.mu.Unlock()
}

func (s *session) setPaused(v bool) {
	s.mu.Lock()
	s.paused = v
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// addBytes bumps the forwarded-byte counter and refreshes activity,
// returning the new total.
func (s *session) addBytes(n int) int64 {
	s.mu.Lock()
	s.bytes += int64(n)
	s.lastActivity = time.Now()
	total := s.bytes
	s.mu.Unlock()
	return total
}

func (s *session) bytesTransferred() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// endpoints snapshots every attached endpoint for best-effort closing.
func (s *session) endpoints() []*endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*endpoint
	if s.sender != nil {
		out = append(out, s.sender)
	}
	if s.receiver != nil {
		out = append(out, s.receiver)
	}
	for _, p := range s.peers {
		out = append(out, p.ep)
	}
	return out
}

// sessionInfo is the read-only summary served by /api/sessions.
type sessionInfo struct {
	ID       string  `json:"id"`
	Active   bool    `json:"active"`
	Bytes    int64   `json:"bytes"`
	Speed    float64 `json:"speed"`
	Created  string  `json:"created"`
	Messages int     `json:"messages"`
}

func (s *session) snapshot() sessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionInfo{
		ID:       s.id,
		Active:   s.active,
		Bytes:    s.bytes,
		Speed:    s.speedLocked(time.Now()),
		Created:  s.createdAt.UTC().Format(time.RFC3339),
		Messages: len(s.messages),
	}
}
