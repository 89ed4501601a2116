// Package server drives each WebSocket peer through registration, the two
// relay directions, and a single guaranteed cleanup.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// peer is one upgraded connection. It is owned by the handler goroutine that
// upgraded it; the registry only ever sees its outbox.
type peer struct {
	id   PeerID
	addr string
	conn *websocket.Conn
	out  *outbox
	hub  *Hub
	log  logx.Logger

	terminated sync.Once
}

func newPeer(h *Hub, conn *websocket.Conn, addr string) *peer {
	id := newPeerID()
	return &peer{
		id:   id,
		addr: addr,
		conn: conn,
		out:  newOutbox(),
		hub:  h,
		log:  h.log.With(logx.String("peer", string(id)), logx.String("remote", addr)),
	}
}

// serveConn runs an upgraded connection to completion. It blocks until both
// relay directions have stopped and the peer has been deregistered.
func (h *Hub) serveConn(ctx context.Context, conn *websocket.Conn, addr string) {
	p := newPeer(h, conn, addr)

	// The entry under this id belongs to someone else, so this path must not
	// go through terminate.
	if err := h.registry.Insert(p.id, p.out); err != nil {
		p.log.Error("peer registration failed", logx.Err(err))
		p.closeConnection()
		return
	}
	h.events.PeerJoined(p.id, p.addr, h.registry.Len())

	p.terminate(p.relay(ctx))
}

// relay runs both directions until the first one stops; its error is the
// termination cause. The transport is closed only after the cause has been
// recorded and the writer has had its chance to send a close frame.
func (p *peer) relay(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	writerDone := make(chan struct{})
	g.Go(p.readPump)
	g.Go(func() error {
		defer close(writerDone)
		return p.writePump(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		<-writerDone
		p.closeConnection()
		return nil
	})
	return g.Wait()
}

// terminate deregisters the peer, closes the transport and reports the
// disconnect. Only the first call has any effect.
func (p *peer) terminate(cause error) {
	p.terminated.Do(func() {
		p.hub.registry.Remove(p.id)
		p.closeConnection()
		p.hub.events.PeerLeft(p.id, p.addr, cause, p.hub.registry.Len())
	})
}

// setupReadConnection configures the read limit, deadline and pong handler.
func (p *peer) setupReadConnection() {
	p.conn.SetReadLimit(p.hub.cfg.MaxMessageSize)
	p.extendReadDeadline()
	p.conn.SetPongHandler(func(string) error {
		p.extendReadDeadline()
		return nil
	})
}

func (p *peer) extendReadDeadline() {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.hub.cfg.PongWait)); err != nil {
		p.log.Debug("error setting read deadline", logx.Err(err))
	}
}

// readPump forwards every inbound data frame to the other peers. It always
// returns a non-nil error so the group cancels the writer.
func (p *peer) readPump() error {
	p.setupReadConnection()

	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			return p.readError(err)
		}
		p.extendReadDeadline()

		msg := Message{Type: msgType, Data: data}
		p.hub.events.MessageReceived(p.id, msg)
		p.hub.Broadcast(p.id, msg)
	}
}

// readError classifies a read failure. A close frame from the client is a
// clean end; gorilla reports a dropped socket as CloseAbnormalClosure, which
// is not.
func (p *peer) readError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		p.log.Warn("message exceeded maximum size", logx.Int64("limit", p.hub.cfg.MaxMessageSize))
		return fmt.Errorf("read: %w", err)
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		return fmt.Errorf("%w (code %d)", ErrPeerClosed, closeErr.Code)
	}
	return fmt.Errorf("read: %w", err)
}

// writePump drains the outbox in FIFO order and keeps the connection alive
// with pings.
func (p *peer) writePump(ctx context.Context) error {
	ticker := time.NewTicker(p.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.out.ready:
			batch, open := p.out.drain()
			if !open {
				p.writeCloseMessage(websocket.CloseGoingAway)
				return ErrPeerRemoved
			}
			for _, msg := range batch {
				if err := p.writeMessage(msg); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := p.writePing(); err != nil {
				return err
			}
		case <-ctx.Done():
			p.writeCloseMessage(websocket.CloseNormalClosure)
			return ctx.Err()
		}
	}
}

func (p *peer) writeMessage(msg Message) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.hub.cfg.WriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := p.conn.WriteMessage(msg.Type, msg.Data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (p *peer) writePing() error {
	deadline := time.Now().Add(p.hub.cfg.WriteWait)
	if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	return nil
}

// writeCloseMessage sends a best-effort close frame.
func (p *peer) writeCloseMessage(code int) {
	deadline := time.Now().Add(p.hub.cfg.WriteWait)
	err := p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
	if !isExpectedCloseError(err) {
		p.log.Debug("error writing close message", logx.Err(err))
	}
}

func (p *peer) closeConnection() {
	if err := p.conn.Close(); !isExpectedCloseError(err) {
		p.log.Debug("error closing connection", logx.Err(err))
	}
}
