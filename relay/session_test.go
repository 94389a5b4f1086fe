package relay

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestAddMessageTruncatesByRunes(t *testing.T) {
	sess := newSession("s1", 5)

	msg := sess.addMessage("sender", "héllo wörld")
	if got := utf8.RuneCountInString(msg.Message); got != 5 {
		t.Fatalf("expected 5 runes after truncation, got %d (%q)", got, msg.Message)
	}
	if msg.Message != "héllo" {
		t.Fatalf("expected %q, got %q", "héllo", msg.Message)
	}
	if msg.Sender != "sender" {
		t.Fatalf("expected sender tag %q, got %q", "sender", msg.Sender)
	}
	if !strings.HasSuffix(msg.Timestamp, "Z") {
		t.Fatalf("expected UTC timestamp with Z suffix, got %q", msg.Timestamp)
	}
}

func TestAddMessageKeepsShortMessages(t *testing.T) {
	sess := newSession("s1", 5000)
	msg := sess.addMessage("receiver", "hi")
	if msg.Message != "hi" {
		t.Fatalf("expected message untouched, got %q", msg.Message)
	}
}

func TestChatHistoryEvictsOldest(t *testing.T) {
	sess := newSession("s1", 5000)
	for i := 0; i < maxChatHistory+10; i++ {
		sess.addMessage("sender", fmt.Sprintf("m%d", i))
	}
	hist := sess.history()
	if len(hist) != maxChatHistory {
		t.Fatalf("expected history capped at %d, got %d", maxChatHistory, len(hist))
	}
	if hist[0].Message != "m10" {
		t.Fatalf("expected oldest surviving entry m10, got %q", hist[0].Message)
	}
	if hist[len(hist)-1].Message != fmt.Sprintf("m%d", maxChatHistory+9) {
		t.Fatalf("unexpected newest entry %q", hist[len(hist)-1].Message)
	}
}

func TestHistoryIsNeverNil(t *testing.T) {
	sess := newSession("s1", 5000)
	if sess.history() == nil {
		t.Fatal("expected empty history to be non-nil")
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	sess := newSession("s1", 5000)
	sess.addMessage("sender", "original")
	hist := sess.history()
	hist[0].Message = "mutated"
	if sess.history()[0].Message != "original" {
		t.Fatal("expected stored history to be unaffected by caller mutation")
	}
}

func TestSpeedBeforeActivationIsZero(t *testing.T) {
	sess := newSession("s1", 5000)
	if got := sess.calculateSpeed(); got != 0 {
		t.Fatalf("expected zero speed before activation, got %f", got)
	}
	sess.addBytes(1024)
	if got := sess.calculateSpeed(); got != 0 {
		t.Fatalf("expected zero speed without a start time, got %f", got)
	}
}

func TestSpeedIsCumulative(t *testing.T) {
	sess := newSession("s1", 5000)
	sess.mu.Lock()
	sess.startTime = time.Now().Add(-2 * time.Second)
	sess.bytes = 1000
	got := sess.speedLocked(time.Now())
	sess.mu.Unlock()
	if got < 400 || got > 600 {
		t.Fatalf("expected roughly 500 B/s, got %f", got)
	}
}

func TestModeLockRejectsPeerAfterSender(t *testing.T) {
	sess := newSession("s1", 5000)
	if err := sess.attachSender(&endpoint{}); err != nil {
		t.Fatalf("attachSender() failed: %v", err)
	}
	if _, err := sess.attachPeer("u1", &endpoint{}); err != ErrModeConflict {
		t.Fatalf("expected ErrModeConflict, got %v", err)
	}
}

func TestModeLockRejectsSenderAfterPeer(t *testing.T) {
	sess := newSession("s1", 5000)
	if _, err := sess.attachPeer("u1", &endpoint{}); err != nil {
		t.Fatalf("attachPeer() failed: %v", err)
	}
	if err := sess.attachSender(&endpoint{}); err != ErrModeConflict {
		t.Fatalf("expected ErrModeConflict for sender, got %v", err)
	}
	if err := sess.attachReceiver(&endpoint{}); err != ErrModeConflict {
		t.Fatalf("expected ErrModeConflict for receiver, got %v", err)
	}
}

func TestDetachReceiverOnlyClearsOwner(t *testing.T) {
	sess := newSession("s1", 5000)
	current := &endpoint{}
	stale := &endpoint{}
	if err := sess.attachReceiver(current); err != nil {
		t.Fatalf("attachReceiver() failed: %v", err)
	}
	sess.detachReceiver(stale)
	if sess.receiverEndpoint() != current {
		t.Fatal("expected stale detach to leave the current receiver attached")
	}
	sess.detachReceiver(current)
	if sess.receiverEndpoint() != nil {
		t.Fatal("expected receiver slot cleared")
	}
}

func TestAttachPeerCountsAndStartsClock(t *testing.T) {
	sess := newSession("s1", 5000)
	ep1, ep2 := &endpoint{}, &endpoint{}

	n, err := sess.attachPeer("u1", ep1)
	if err != nil || n != 1 {
		t.Fatalf("attachPeer(u1) = (%d, %v), want (1, nil)", n, err)
	}
	n, err = sess.attachPeer("u2", ep2)
	if err != nil || n != 2 {
		t.Fatalf("attachPeer(u2) = (%d, %v), want (2, nil)", n, err)
	}

	others := sess.peerEndpoints(ep1)
	if len(others) != 1 || others[0] != ep2 {
		t.Fatalf("expected peerEndpoints to exclude the caller, got %d entries", len(others))
	}

	remaining := sess.detachPeer(ep1)
	if len(remaining) != 1 || remaining[0] != ep2 {
		t.Fatalf("expected one remaining peer after detach, got %d", len(remaining))
	}
	if remaining = sess.detachPeer(ep2); len(remaining) != 0 {
		t.Fatalf("expected empty session after last detach, got %d", len(remaining))
	}
}

func TestAddBytesRefreshesActivity(t *testing.T) {
	sess := newSession("s1", 5000)
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-time.Hour)
	sess.mu.Unlock()

	if total := sess.addBytes(10); total != 10 {
		t.Fatalf("expected running total 10, got %d", total)
	}
	if total := sess.addBytes(5); total != 15 {
		t.Fatalf("expected running total 15, got %d", total)
	}
	if time.Since(sess.idleSince()) > time.Minute {
		t.Fatal("expected addBytes to refresh lastActivity")
	}
}

func TestSnapshotReportsCounters(t *testing.T) {
	sess := newSession("s1", 5000)
	sess.markActive()
	sess.addBytes(42)
	sess.addMessage("sender", "hi")

	info := sess.snapshot()
	if info.ID != "s1" || !info.Active || info.Bytes != 42 || info.Messages != 1 {
		t.Fatalf("unexpected snapshot: %+v", info)
	}
	if !strings.HasSuffix(info.Created, "Z") {
		t.Fatalf("expected UTC created timestamp, got %q", info.Created)
	}
}
