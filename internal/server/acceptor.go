// Package server binds the listener and runs the accept loop that hands each
// connection to its own handler goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// Listen binds a TCP listener on addr. A failure here is fatal for startup.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return ln, nil
}

// Run binds addr and serves until ctx is cancelled. It only returns early if
// the address cannot be bound.
func (h *Hub) Run(ctx context.Context, addr string) error {
	ln, err := Listen(addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops
// accepting, closes every peer and waits for their handlers. Serve takes
// ownership of ln.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	srv := CreateServer(h.Routes())
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	rl := &retryListener{
		Listener: ln,
		ctx:      ctx,
		limiter:  rate.NewLimiter(rate.Every(h.cfg.AcceptRetryInterval), 1),
		events:   h.events,
	}

	h.events.Listening(ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(rl)
	}()

	select {
	case err := <-serveErr:
		_ = h.closePeers(h.cfg.ShutdownTimeout)
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	h.log.Info("shutting down listener", logx.String("addr", ln.Addr().String()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.log.Warn("http server shutdown error", logx.Err(err))
	}
	<-serveErr

	return h.closePeers(h.cfg.ShutdownTimeout)
}

// retryListener keeps the accept loop alive across individual accept
// failures. Each failure is reported and the next attempt is throttled by
// limiter; only a closed listener or a cancelled ctx ends the loop, and both
// surface as net.ErrClosed.
type retryListener struct {
	net.Listener
	ctx     context.Context
	limiter *rate.Limiter
	events  Events
}

func (l *retryListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}

		l.events.AcceptFailed(err)
		if werr := l.limiter.Wait(l.ctx); werr != nil {
			if l.ctx.Err() != nil {
				return nil, net.ErrClosed
			}
			return nil, err
		}
	}
}
