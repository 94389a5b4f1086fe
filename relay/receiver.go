package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/filebeam/relay/observability"
)

// handleReceiver attaches the receiver slot, replays chat history, and
// relays the receiver's control traffic back to the sender. On disconnect
// it clears only its own slot; the sender handler owns session removal.
func (s *Server) handleReceiver(sess *session, ep *endpoint) error {
	if err := sess.attachReceiver(ep); err != nil {
		s.notifyModeConflict(ep, sess.id)
		return nil
	}
	s.obs.Attach(observability.AttachResultOK, observability.AttachReasonOK)
	sess.updateActivity()

	if err := ep.writeJSON(connectedFrame{
		Status:      "connected",
		Message:     "Connected to sender",
		Metadata:    sess.metadata,
		Timestamp:   nowStamp(),
		ChatHistory: sess.history(),
	}); err != nil {
		sess.detachReceiver(ep)
		return nil
	}

	if snd := sess.senderEndpoint(); snd != nil {
		_ = snd.writeJSON(statusNote{
			Status:    "receiver_connected",
			Message:   "Receiver connected",
			Timestamp: nowStamp(),
		})
	}

	for {
		mt, data, err := ep.readMessage()
		if err != nil {
			break
		}
		// The receiver speaks only control JSON; binary frames from this
		// side are ignored.
		if mt != websocket.TextMessage {
			continue
		}
		s.receiverControl(sess, data)
	}
	s.log.Info("receiver disconnected", slog.String("session", sess.id))
	sess.detachReceiver(ep)
	return nil
}

func (s *Server) receiverControl(sess *session, raw []byte) {
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
		entry := sess.addMessage("receiver", msg.Message)
		sess.updateActivity()
		s.obs.ChatRelayed()
		if snd := sess.senderEndpoint(); snd != nil {
			_ = snd.writeJSON(chatEvent{Type: "chat", Data: entry})
		}
	case ctrlTyping:
		if snd := sess.senderEndpoint(); snd != nil {
			_ = snd.writeJSON(typingEvent{Type: "typing", Sender: "receiver"})
		}
	case ctrlPong:
		sess.updateActivity()
	}
}
