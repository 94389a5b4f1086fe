package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filebeam/relay/observability"
)

// senderFrame is one read-pump result; err is terminal.
type senderFrame struct {
	mt   int
	data []byte
	err  error
}

// handleSender runs the sender state machine: announce, wait for the
// receiver, stream, tear down. The sender owns session removal in paired
// mode; the receiver handler only clears its own slot.
//
// A read pump runs for the whole handler lifetime so control frames sent
// during the rendezvous wait (chat, pong) are processed rather than
// buffered behind the pairing.
func (s *Server) handleSender(sess *session, ep *endpoint) error {
	if err := sess.attachSender(ep); err != nil {
		s.notifyModeConflict(ep, sess.id)
		return nil
	}
	s.obs.Attach(observability.AttachResultOK, observability.AttachReasonOK)

	if err := ep.writeJSON(waitingFrame{
		Status:    "waiting",
		Message:   "Waiting for receiver...",
		SessionID: sess.id,
		Timestamp: nowStamp(),
	}); err != nil {
		s.finishSenderSession(sess)
		return nil
	}

	frames := make(chan senderFrame)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			mt, data, err := ep.readMessage()
			select {
			case frames <- senderFrame{mt: mt, data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	attachedAt := time.Now()
	if !s.awaitReceiver(sess, ep, frames) {
		return nil
	}
	s.obs.RendezvousLatency(time.Since(attachedAt))
	s.log.Info("receiver connected", slog.String("session", sess.id))

	sess.markActive()
	if err := ep.writeJSON(readyFrame{
		Status:      "ready",
		Message:     "Receiver connected. Ready to transfer.",
		Timestamp:   nowStamp(),
		ChatHistory: sess.history(),
	}); err == nil {
		s.streamFromSender(sess, frames)
	}
	s.finishSenderSession(sess)
	return nil
}

// awaitReceiver waits until the receiver attaches or RendezvousTimeout
// elapses, polling at RendezvousPoll granularity. Each poll refreshes
// activity so a waiting session is not swept as idle. Control frames that
// arrive during the wait are handled; binary payloads sent before pairing
// are dropped, not queued. Returns false when the session was torn down
// (timeout, sender disconnect or server shutdown).
func (s *Server) awaitReceiver(sess *session, ep *endpoint, frames <-chan senderFrame) bool {
	deadline := time.Now().Add(s.cfg.RendezvousTimeout)
	t := time.NewTicker(s.cfg.RendezvousPoll)
	defer t.Stop()
	for sess.receiverEndpoint() == nil {
		if !time.Now().Before(deadline) {
			_ = ep.writeJSON(newErrorFrame("Receiver timeout"))
			s.removeSession(sess, observability.CloseReasonReceiverTimeout)
			return false
		}
		select {
		case f := <-frames:
			if f.err != nil {
				// Sender left before pairing.
				s.finishSenderSession(sess)
				return false
			}
			if f.mt == websocket.TextMessage {
				s.senderControl(sess, f.data)
			}
		case <-t.C:
			sess.updateActivity()
		case <-s.stopCh:
			return false
		}
	}
	return true
}

// streamFromSender relays frames until the sender disconnects. Binary
// frames are counted and forwarded verbatim unless the session is paused,
// in which case they are dropped, not queued.
func (s *Server) streamFromSender(sess *session, frames <-chan senderFrame) {
	lastSpeedUpdate := time.Now()
	for f := range frames {
		if f.err != nil {
			// Normal end-of-life for the handler, not an error.
			return
		}
		switch f.mt {
		case websocket.TextMessage:
			s.senderControl(sess, f.data)
		case websocket.BinaryMessage:
			if sess.isPaused() {
				continue
			}
			total := sess.addBytes(len(f.data))
			s.obs.BytesRelayed(len(f.data))
			if rcv := sess.receiverEndpoint(); rcv != nil {
				// A failed forward is observed by the receiver's own
				// read loop; the sender keeps streaming.
				_ = rcv.writeBinary(f.data)
			}
			if time.Since(lastSpeedUpdate) > s.cfg.SpeedUpdateInterval {
				if snd := sess.senderEndpoint(); snd != nil {
					_ = snd.writeJSON(speedUpdate{
						Type:             "speed_update",
						Speed:            sess.calculateSpeed(),
						BytesTransferred: total,
					})
				}
				lastSpeedUpdate = time.Now()
			}
		}
	}
}

func (s *Server) senderControl(sess *session, raw []byte) {
	var msg inboundControl
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Debug("dropping malformed control frame",
			slog.String("session", sess.id),
			slog.String("error", err.Error()),
		)
		return
	}
	switch msg.Type {
	case ctrlChat:
		entry := sess.addMessage("sender", msg.Message)
		sess.updateActivity()
		s.obs.ChatRelayed()
		if rcv := sess.receiverEndpoint(); rcv != nil {
			_ = rcv.writeJSON(chatEvent{Type: "chat", Data: entry})
		}
	case ctrlTyping:
		if rcv := sess.receiverEndpoint(); rcv != nil {
			_ = rcv.writeJSON(typingEvent{Type: "typing", Sender: "sender"})
		}
	case ctrlPause:
		sess.setPaused(true)
		if rcv := sess.receiverEndpoint(); rcv != nil {
			_ = rcv.writeJSON(event{Type: "paused"})
		}
	case ctrlResume:
		sess.setPaused(false)
		if rcv := sess.receiverEndpoint(); rcv != nil {
			_ = rcv.writeJSON(event{Type: "resumed"})
		}
	case ctrlPong:
		sess.updateActivity()
	default:
		// Unknown control types are ignored.
	}
}

// finishSenderSession runs on every sender exit path after attach: flag
// the session ended, drain the receiver with a completion event, and drop
// the session from the registry.
func (s *Server) finishSenderSession(sess *session) {
	sess.markEnded()
	if rcv := sess.receiverEndpoint(); rcv != nil {
		_ = rcv.writeJSON(event{Type: "transfer_complete"})
		_ = rcv.close()
	}
	s.removeSession(sess, observability.CloseReasonSenderClosed)
}
