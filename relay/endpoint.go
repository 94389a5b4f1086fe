package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// endpoint wraps a websocket connection with serialized writes. gorilla
// permits only one concurrent writer per connection, and several handlers
// (peer broadcasts, heartbeats, telemetry) may target the same socket.
type endpoint struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newEndpoint(conn *websocket.Conn, writeTimeout time.Duration) *endpoint {
	return &endpoint{conn: conn, writeTimeout: writeTimeout}
}

// readMessage blocks until the next frame arrives. Reads are single-owner
// (the role handler goroutine), so no serialization is needed.
func (ep *endpoint) readMessage() (int, []byte, error) {
	return ep.conn.ReadMessage()
}

// writeJSON marshals v and sends it as a text frame.
func (ep *endpoint) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ep.write(websocket.TextMessage, b)
}

// writeBinary forwards an opaque payload frame unchanged.
func (ep *endpoint) writeBinary(b []byte) error {
	return ep.write(websocket.BinaryMessage, b)
}

func (ep *endpoint) write(messageType int, b []byte) error {
	ep.writeMu.Lock()
	defer ep.writeMu.Unlock()
	if ep.writeTimeout > 0 {
		_ = ep.conn.SetWriteDeadline(time.Now().Add(ep.writeTimeout))
	} else {
		_ = ep.conn.SetWriteDeadline(time.Time{})
	}
	return ep.conn.WriteMessage(messageType, b)
}

// close shuts the connection down. Safe to call from any goroutine and
// any number of times; teardown paths tolerate already-closed endpoints.
func (ep *endpoint) close() error {
	ep.closeOnce.Do(func() {
		ep.closeErr = ep.conn.Close()
	})
	return ep.closeErr
}
