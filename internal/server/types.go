// Package server defines shared message payload types and utility helpers that
// are reused across peer and hub logic.
package server

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PeerID uniquely identifies one live connection for as long as it is registered.
type PeerID string

func newPeerID() PeerID {
	return PeerID(uuid.NewString())
}

// Message is one relayed frame. Type is the WebSocket frame type (text or
// binary); Data is forwarded verbatim and shared read-only between recipients.
type Message struct {
	Type int
	Data []byte
}

// TextMessage builds a text frame message.
func TextMessage(s string) Message {
	return Message{Type: websocket.TextMessage, Data: []byte(s)}
}

var (
	// ErrDuplicatePeer is returned when a PeerID is registered twice.
	ErrDuplicatePeer = errors.New("peer already registered")
	// ErrPeerClosed ends the inbound direction when the client sends a close frame.
	ErrPeerClosed = errors.New("peer sent close")
	// ErrPeerRemoved ends the outbound direction when the peer's queue is closed.
	ErrPeerRemoved = errors.New("peer removed from registry")
)

// isGracefulDisconnect reports whether a termination cause is an orderly close
// rather than a transport failure.
func isGracefulDisconnect(err error) bool {
	if err == nil ||
		errors.Is(err, ErrPeerClosed) ||
		errors.Is(err, ErrPeerRemoved) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
