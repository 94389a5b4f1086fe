// Package relay implements the session multiplexer: a stateful switch
// that forwards opaque binary payloads and chat/control messages between
// endpoints attached to the same session over WebSocket.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filebeam/relay/observability"
	"github.com/filebeam/relay/realtime/ws"
)

// Roles an endpoint can take in a session.
const (
	roleSender   = "sender"
	roleReceiver = "receiver"
	rolePeer     = "peer"
)

// Server owns the session registry, the per-user throttle and the idle
// sweeper, and terminates every relay websocket.
type Server struct {
	cfg Config // Immutable runtime configuration.

	log      *slog.Logger
	obs      observability.RelayObserver
	registry *registry
	throttle *throttle
	upgrader websocket.Upgrader

	connCount int64 // Current connection count.

	stopOnce sync.Once     // Ensures shutdown only happens once.
	stopCh   chan struct{} // Signals the sweeper to stop.
}

// Stats captures a point-in-time view of relay counts.
type Stats struct {
	ConnCount    int64
	SessionCount int
}

// New validates config, fills defaults and starts the background sweeper.
func New(cfg Config) (*Server, error) {
	def := DefaultConfig()
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = def.PathPrefix
	}
	if !strings.HasSuffix(cfg.PathPrefix, "/") {
		cfg.PathPrefix += "/"
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = def.ProjectName
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.MaxConnectionsPerUser <= 0 {
		cfg.MaxConnectionsPerUser = def.MaxConnectionsPerUser
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = def.MaxMessageLength
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = def.MaxFrameBytes
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = def.SessionTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.RendezvousTimeout <= 0 {
		cfg.RendezvousTimeout = def.RendezvousTimeout
	}
	if cfg.RendezvousPoll <= 0 {
		cfg.RendezvousPoll = def.RendezvousPoll
	}
	if cfg.SpeedUpdateInterval <= 0 {
		cfg.SpeedUpdateInterval = def.SpeedUpdateInterval
	}
	if cfg.PingInterval < 0 {
		cfg.PingInterval = 0
	}
	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = 0
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
		cfg.AllowNoOrigin = true
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.NoopRelayObserver
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		obs:      cfg.Observer,
		registry: newRegistry(cfg.MaxSessions, cfg.MaxMessageLength),
		throttle: newThrottle(cfg.MaxConnectionsPerUser),
		upgrader: websocket.Upgrader{
			CheckOrigin: ws.NewOriginChecker(cfg.AllowedOrigins, cfg.AllowNoOrigin),
		},
		stopCh: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Stats returns current connection and session counts.
func (s *Server) Stats() Stats {
	return Stats{
		ConnCount:    atomic.LoadInt64(&s.connCount),
		SessionCount: s.registry.len(),
	}
}

// Register installs the websocket and status endpoints on the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc(s.cfg.PathPrefix, s.handleWS)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/", s.handleRoot)
}

// Close stops the sweeper and prevents new background work. Live handler
// goroutines drain as their connections close.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// handleWS upgrades the connection, applies the throttle and capacity
// gates, and dispatches to the role handler. Teardown always releases the
// throttle slot and closes the socket; session-level cleanup belongs to
// the role handler.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID, role, userID, ok := s.parsePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.obs.Attach(observability.AttachResultFail, observability.AttachReasonUpgradeError)
		return
	}
	conn.SetReadLimit(s.cfg.MaxFrameBytes)
	ep := newEndpoint(conn, s.cfg.WriteTimeout)
	s.trackConn()
	defer func() {
		_ = ep.close()
		s.untrackConn()
	}()

	s.log.Info("connection",
		slog.String("user", userID),
		slog.String("role", role),
		slog.String("session", sessionID),
	)

	if !s.throttle.tryAcquire(userID) {
		s.obs.Attach(observability.AttachResultFail, observability.AttachReasonTooManyConnections)
		_ = ep.writeJSON(newErrorFrame("Too many connections"))
		return
	}
	defer s.throttle.release(userID)

	sess, created, err := s.registry.getOrCreate(sessionID)
	if err != nil {
		s.obs.Attach(observability.AttachResultFail, observability.AttachReasonServerAtCapacity)
		_ = ep.writeJSON(newErrorFrame("Server at capacity"))
		return
	}
	if created {
		s.obs.SessionCount(s.registry.len())
	}
	sess.updateActivity()

	if s.cfg.PingInterval > 0 {
		done := make(chan struct{})
		defer close(done)
		go s.heartbeat(ep, done)
	}

	var handlerErr error
	switch role {
	case roleSender:
		handlerErr = s.handleSender(sess, ep)
	case roleReceiver:
		handlerErr = s.handleReceiver(sess, ep)
	case rolePeer:
		handlerErr = s.handlePeer(sess, ep, userID)
	default:
		s.obs.Attach(observability.AttachResultFail, observability.AttachReasonInvalidRole)
		_ = ep.writeJSON(newErrorFrame(fmt.Sprintf("Invalid mode: %s", role)))
		return
	}
	if handlerErr != nil {
		// Internal fault: best-effort error frame, then teardown. Other
		// sessions are unaffected.
		s.log.Error("handler failed",
			slog.String("session", sessionID),
			slog.String("role", role),
			slog.String("error", handlerErr.Error()),
		)
		_ = ep.writeJSON(newErrorFrame(handlerErr.Error()))
	}
}

// parsePath extracts (session_id, role, user_id) from
// <prefix>{session_id}/{role}/{user_id}. All three are opaque strings.
func (s *Server) parsePath(path string) (sessionID, role, userID string, ok bool) {
	rest, found := strings.CutPrefix(path, s.cfg.PathPrefix)
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// notifyModeConflict reports an attach that would mix legacy and peer
// modes within one session.
func (s *Server) notifyModeConflict(ep *endpoint, sessionID string) {
	s.obs.Attach(observability.AttachResultFail, observability.AttachReasonModeConflict)
	s.log.Warn("mode conflict", slog.String("session", sessionID))
	_ = ep.writeJSON(newErrorFrame("Session busy: role conflicts with established session mode"))
}

// removeSession drops the session from the registry and records why.
func (s *Server) removeSession(sess *session, reason observability.CloseReason) {
	s.registry.remove(sess.id)
	s.obs.SessionCount(s.registry.len())
	s.obs.Close(reason)
}

// heartbeat writes a ping event every PingInterval until the handler
// returns or the write fails; pong replies refresh session activity in
// the role handlers.
func (s *Server) heartbeat(ep *endpoint, done <-chan struct{}) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.stopCh:
			return
		case <-t.C:
			if err := ep.writeJSON(event{Type: "ping"}); err != nil {
				return
			}
		}
	}
}

// sweepLoop periodically evicts sessions idle beyond SessionTimeout,
// closing any attached endpoints best-effort. Removal is idempotent with
// respect to handlers cleaning up concurrently.
func (s *Server) sweepLoop() {
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			now := time.Now()
			for _, sess := range s.registry.all() {
				if now.Sub(sess.idleSince()) <= s.cfg.SessionTimeout {
					continue
				}
				s.log.Info("cleaning up stale session", slog.String("session", sess.id))
				s.removeSession(sess, observability.CloseReasonIdleTimeout)
				for _, ep := range sess.endpoints() {
					_ = ep.close()
				}
			}
		}
	}
}

func (s *Server) trackConn() {
	n := atomic.AddInt64(&s.connCount, 1)
	s.obs.ConnCount(n)
}

func (s *Server) untrackConn() {
	n := atomic.AddInt64(&s.connCount, -1)
	s.obs.ConnCount(n)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "healthy",
		"sessions":  s.registry.len(),
		"timestamp": nowStamp(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.all()
	infos := make([]sessionInfo, 0, len(sessions))
	active := 0
	for _, sess := range sessions {
		info := sess.snapshot()
		if info.Active {
			active++
		}
		infos = append(infos, info)
	}
	writeJSON(w, map[string]any{
		"total":    len(infos),
		"active":   active,
		"sessions": infos,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"message":       fmt.Sprintf("%s API is running", s.cfg.ProjectName),
		"max_file_size": s.cfg.MaxFileSize,
		"chunk_size":    s.cfg.ChunkSize,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
