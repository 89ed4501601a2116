package server

import (
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// LogEvents writes human-readable lifecycle lines through a logx.Logger.
type LogEvents struct {
	Log logx.Logger
}

func (e LogEvents) Listening(addr string) {
	e.Log.Info("listening", logx.String("addr", addr))
}

func (e LogEvents) AcceptFailed(err error) {
	e.Log.Warn("accept failed; retrying", logx.Err(err))
}

func (e LogEvents) HandshakeFailed(addr string, err error) {
	e.Log.Warn("websocket upgrade failed", logx.String("remote", addr), logx.Err(err))
}

func (e LogEvents) PeerJoined(id PeerID, addr string, peers int) {
	e.Log.Info("peer connected",
		logx.String("peer", string(id)),
		logx.String("remote", addr),
		logx.Int("peers", peers),
	)
}

func (e LogEvents) PeerLeft(id PeerID, addr string, cause error, peers int) {
	fields := []logx.Field{
		logx.String("peer", string(id)),
		logx.String("remote", addr),
		logx.Int("peers", peers),
	}
	if isGracefulDisconnect(cause) {
		e.Log.Info("peer disconnected", append(fields, logx.Any("cause", causeString(cause)))...)
		return
	}
	e.Log.Warn("peer dropped", append(fields, logx.Err(cause))...)
}

func (e LogEvents) MessageReceived(id PeerID, msg Message) {
	if !e.Log.Enabled(logx.LevelDebug) {
		return
	}
	fields := []logx.Field{logx.String("peer", string(id)), logx.Int("bytes", len(msg.Data))}
	if msg.Type == websocket.TextMessage {
		fields = append(fields, logx.String("text", string(msg.Data)))
	}
	e.Log.Debug("message received", fields...)
}

func (e LogEvents) Broadcast(from PeerID, delivered, dropped int) {
	if dropped > 0 {
		e.Log.Debug("broadcast to closing peers dropped",
			logx.String("peer", string(from)),
			logx.Int("delivered", delivered),
			logx.Int("dropped", dropped),
		)
	}
}

func causeString(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}
