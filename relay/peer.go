package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filebeam/relay/observability"
)

// handlePeer runs the N-party state machine: every peer both sends and
// receives, and frames are broadcast to all peers except their source.
// The last peer out removes the session.
func (s *Server) handlePeer(sess *session, ep *endpoint, userID string) error {
	count, err := sess.attachPeer(userID, ep)
	if err != nil {
		s.notifyModeConflict(ep, sess.id)
		return nil
	}
	s.obs.Attach(observability.AttachResultOK, observability.AttachReasonOK)
	sess.updateActivity()

	if err := ep.writeJSON(peerWelcomeFrame{
		Status:      "connected",
		Message:     fmt.Sprintf("Connected to session. %d peer(s) in session.", count),
		UserID:      userID,
		Timestamp:   nowStamp(),
		ChatHistory: sess.history(),
		PeerCount:   count,
	}); err != nil {
		s.finishPeer(sess, ep)
		return nil
	}

	for _, other := range sess.peerEndpoints(ep) {
		_ = other.writeJSON(statusNote{
			Status:    "peer_joined",
			Message:   "Another peer joined the session",
			Timestamp: nowStamp(),
		})
	}
	s.log.Info("peer connected",
		slog.String("user", userID),
		slog.String("session", sess.id),
		slog.Int("peers", count),
	)

	s.streamFromPeer(sess, ep, userID)
	s.log.Info("peer disconnected",
		slog.String("user", userID),
		slog.String("session", sess.id),
	)
	s.finishPeer(sess, ep)
	return nil
}

// streamFromPeer relays this peer's frames until it disconnects. A send
// failure to one recipient never interrupts the broadcast; the failed
// recipient's own read loop observes the disconnect and cleans up.
func (s *Server) streamFromPeer(sess *session, ep *endpoint, userID string) {
	lastSpeedUpdate := time.Now()
	for {
		mt, data, err := ep.readMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.TextMessage:
			s.peerControl(sess, ep, userID, data)
		case websocket.BinaryMessage:
			total := sess.addBytes(len(data))
			s.obs.BytesRelayed(len(data))
			for _, other := range sess.peerEndpoints(ep) {
				_ = other.writeBinary(data)
			}
			if time.Since(lastSpeedUpdate) > s.cfg.SpeedUpdateInterval {
				_ = ep.writeJSON(speedUpdate{
					Type:             "speed_update",
					Speed:            sess.calculateSpeed(),
					BytesTransferred: total,
				})
				lastSpeedUpdate = time.Now()
			}
		}
	}
}

func (s *Server) peerControl(sess *session, ep *endpoint, userID string, raw []byte) {
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
		entry := sess.addMessage(userID, msg.Message)
		sess.updateActivity()
		s.obs.ChatRelayed()
		for _, other := range sess.peerEndpoints(ep) {
			_ = other.writeJSON(chatEvent{Type: "chat", Data: entry})
		}
	case ctrlPong:
		sess.updateActivity()
	}
}

// finishPeer detaches the peer, notifies the remainder, and removes the
// session when the room is empty.
func (s *Server) finishPeer(sess *session, ep *endpoint) {
	remaining := sess.detachPeer(ep)
	for _, other := range remaining {
		_ = other.writeJSON(eventNote{
			Type:      "peer_left",
			Message:   "A peer left the session",
			Timestamp: nowStamp(),
		})
	}
	if len(remaining) == 0 {
		sess.markEnded()
		s.removeSession(sess, observability.CloseReasonLastPeerLeft)
	}
}
