// Package observability defines the metric event interface the relay
// emits into. Implementations live out of the hot path; the relay calls
// observers without holding any lock.
package observability

import "time"

type AttachResult string

const (
	AttachResultOK   AttachResult = "ok"
	AttachResultFail AttachResult = "fail"
)

type AttachReason string

const (
	AttachReasonOK                 AttachReason = "ok"
	AttachReasonUpgradeError       AttachReason = "upgrade_error"
	AttachReasonTooManyConnections AttachReason = "too_many_connections"
	AttachReasonServerAtCapacity   AttachReason = "server_at_capacity"
	AttachReasonInvalidRole        AttachReason = "invalid_role"
	AttachReasonModeConflict       AttachReason = "mode_conflict"
)

type CloseReason string

const (
	CloseReasonSenderClosed    CloseReason = "sender_closed"
	CloseReasonReceiverTimeout CloseReason = "receiver_timeout"
	CloseReasonLastPeerLeft    CloseReason = "last_peer_left"
	CloseReasonIdleTimeout     CloseReason = "idle_timeout"
)

// RelayObserver receives relay-level metric events.
type RelayObserver interface {
	ConnCount(n int64)
	SessionCount(n int)
	Attach(result AttachResult, reason AttachReason)
	Close(reason CloseReason)
	RendezvousLatency(d time.Duration)
	BytesRelayed(n int)
	ChatRelayed()
}

type noopRelayObserver struct{}

func (noopRelayObserver) ConnCount(int64)                   {}
func (noopRelayObserver) SessionCount(int)                  {}
func (noopRelayObserver) Attach(AttachResult, AttachReason) {}
func (noopRelayObserver) Close(CloseReason)                 {}
func (noopRelayObserver) RendezvousLatency(time.Duration)   {}
func (noopRelayObserver) BytesRelayed(int)                  {}
func (noopRelayObserver) ChatRelayed()                      {}

// NoopRelayObserver is a zero-cost observer used when metrics are disabled.
var NoopRelayObserver RelayObserver = noopRelayObserver{}
