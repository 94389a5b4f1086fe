package relay

import (
	"log/slog"
	"time"

	"github.com/filebeam/relay/observability"
)

type Config struct {
	ProjectName string // Human-readable service name for the root endpoint.
	PathPrefix  string // WebSocket endpoint prefix (e.g. "/ws/").

	MaxSessions           int   // Registry cardinality bound.
	MaxConnectionsPerUser int   // Per-user concurrent connection ceiling.
	MaxMessageLength      int   // Chat message character cap.
	MaxFrameBytes         int64 // Read limit per websocket frame.
	MaxFileSize           int64 // Advisory transfer cap surfaced to clients.
	ChunkSize             int   // Advisory payload chunk size for clients.

	SessionTimeout      time.Duration // Idle age before the sweeper evicts a session.
	SweepInterval       time.Duration // Sweeper cadence.
	RendezvousTimeout   time.Duration // Sender waits this long for a receiver.
	RendezvousPoll      time.Duration // Granularity of the rendezvous poll.
	SpeedUpdateInterval time.Duration // Minimum gap between telemetry frames.
	PingInterval        time.Duration // Heartbeat cadence (0 disables).
	WriteTimeout        time.Duration // Per-frame websocket write deadline (0 disables).

	AllowedOrigins []string // Allowed Origin header values ("*" allows any).
	AllowNoOrigin  bool     // Whether to allow empty Origin.

	Logger   *slog.Logger                // Optional structured logger.
	Observer observability.RelayObserver // Optional metrics observer.
}

// DefaultConfig returns the defaults the relay has always run with: a 200
// session registry, 5 connections per user, 30 minute idle eviction and a
// 5 minute rendezvous window.
func DefaultConfig() Config {
	return Config{
		ProjectName:           "File Transfer Pro",
		PathPrefix:            "/ws/",
		MaxSessions:           200,
		MaxConnectionsPerUser: 5,
		MaxMessageLength:      5000,
		MaxFrameBytes:         8 << 20,
		MaxFileSize:           5 << 30,
		ChunkSize:             128 << 10,
		SessionTimeout:        30 * time.Minute,
		SweepInterval:         60 * time.Second,
		RendezvousTimeout:     300 * time.Second,
		RendezvousPoll:        time.Second,
		SpeedUpdateInterval:   time.Second,
		PingInterval:          30 * time.Second,
		WriteTimeout:          10 * time.Second,
		AllowedOrigins:        []string{"*"},
		AllowNoOrigin:         true,
		Observer:              observability.NoopRelayObserver,
	}
}
