package relay

import "time"

// ChatMessage is one stored chat log entry. It is relayed verbatim as the
// "data" of chat events and as part of chat_history on attach.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// inboundControl is the shape of every text frame a client may send.
// Unknown types are ignored; malformed JSON is dropped and logged.
type inboundControl struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Control frame types recognized from clients.
const (
	ctrlChat   = "chat"
	ctrlTyping = "typing"
	ctrlPause  = "pause"
	ctrlResume = "resume"
	ctrlPong   = "pong"
)

type errorFrame struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newErrorFrame(message string) errorFrame {
	return errorFrame{Status: "error", Message: message}
}

type waitingFrame struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

type readyFrame struct {
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	Timestamp   string        `json:"timestamp"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

type connectedFrame struct {
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   string         `json:"timestamp"`
	ChatHistory []ChatMessage  `json:"chat_history"`
}

type peerWelcomeFrame struct {
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	UserID      string        `json:"user_id"`
	Timestamp   string        `json:"timestamp"`
	ChatHistory []ChatMessage `json:"chat_history"`
	PeerCount   int           `json:"peer_count"`
}

// statusNote covers lifecycle notifications that carry only a status,
// a message and a timestamp (receiver_connected, peer_joined).
type statusNote struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type chatEvent struct {
	Type string      `json:"type"`
	Data ChatMessage `json:"data"`
}

type typingEvent struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
}

// event covers bare relayed events (paused, resumed, transfer_complete,
// ping).
type event struct {
	Type string `json:"type"`
}

// eventNote is an event with a message and timestamp (peer_left).
type eventNote struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type speedUpdate struct {
	Type             string  `json:"type"`
	Speed            float64 `json:"speed"`
	BytesTransferred int64   `json:"bytes_transferred"`
}

// nowStamp returns the current UTC time in ISO-8601 with a trailing Z.
func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
