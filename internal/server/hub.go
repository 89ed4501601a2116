// Package server coordinates peer registration, message broadcast, and
// connection cleanup for the relay hub via the Hub type.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// Hub owns the peer registry and everything a connection handler needs. It
// is constructed once at startup and passed to the acceptor; there is no
// package-level instance.
type Hub struct {
	cfg      Config
	registry *Registry
	events   Events
	log      logx.Logger
	origins  *originPolicy
	upgrader websocket.Upgrader
	metrics  http.Handler

	// wg tracks live connection handlers for Shutdown.
	wg sync.WaitGroup
}

// Option customizes a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for hub-level diagnostics and, unless
// WithEvents is given, for lifecycle events.
func WithLogger(log logx.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithEvents replaces the default logging event sink.
func WithEvents(sinks ...Events) Option {
	return func(h *Hub) { h.events = MultiEvents(sinks...) }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(h *Hub) { h.metrics = handler }
}

// NewHub creates a hub ready to serve connections.
func NewHub(cfg Config, opts ...Option) *Hub {
	h := &Hub{cfg: sanitizeConfig(cfg)}
	for _, opt := range opts {
		opt(h)
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	if h.events == nil {
		h.events = LogEvents{Log: h.log}
	}
	h.origins = newOriginPolicy(h.cfg.AllowedOrigins, h.log)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: h.cfg.HandshakeTimeout,
		CheckOrigin:      h.origins.check,
	}
	return h
}

// Registry returns the hub's peer registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// PeerCount returns the number of registered peers.
func (h *Hub) PeerCount() int {
	return h.registry.Len()
}

// Peers returns the registered peer ids.
func (h *Hub) Peers() []PeerID {
	return h.registry.IDs()
}

// ApplyConfig swaps in the origin allow-list from cfg. Every other hub
// setting is read once at construction; changed ones are reported and
// returned so the caller knows a restart is needed.
func (h *Hub) ApplyConfig(cfg Config) []string {
	h.origins.set(cfg.AllowedOrigins)
	h.log.Info("hub config applied", logx.Int("allowed_origins", len(cfg.AllowedOrigins)))

	ignored := restartOnlyChanges(h.cfg, sanitizeConfig(cfg))
	if len(ignored) > 0 {
		h.log.Warn("config changes ignored until restart", logx.String("keys", strings.Join(ignored, ",")))
	}
	return ignored
}

// restartOnlyChanges lists the yaml keys that differ between the running and
// the reloaded config but cannot be applied live.
func restartOnlyChanges(running, next Config) []string {
	var keys []string
	add := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}
	add("addr", running.Addr != next.Addr)
	add("max_message_size", running.MaxMessageSize != next.MaxMessageSize)
	add("ping_interval", running.PingInterval != next.PingInterval)
	add("pong_wait", running.PongWait != next.PongWait)
	add("write_wait", running.WriteWait != next.WriteWait)
	add("handshake_timeout", running.HandshakeTimeout != next.HandshakeTimeout)
	add("shutdown_timeout", running.ShutdownTimeout != next.ShutdownTimeout)
	add("accept_retry_interval", running.AcceptRetryInterval != next.AcceptRetryInterval)
	add("heartbeat", running.Heartbeat != next.Heartbeat)
	add("metrics", running.Metrics != next.Metrics)
	return keys
}

// Broadcast delivers msg to every registered peer except from.
func (h *Hub) Broadcast(from PeerID, msg Message) (delivered, dropped int) {
	delivered, dropped = h.registry.Broadcast(from, msg)
	h.events.Broadcast(from, delivered, dropped)
	return delivered, dropped
}

// closePeers removes every peer from the registry, which makes each writer
// send a close frame and terminate its connection, then waits up to timeout
// for the handlers to finish.
func (h *Hub) closePeers(timeout time.Duration) error {
	n := h.registry.RemoveAll()
	h.log.Info("closing peer connections", logx.Int("peers", n))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some connections may still be closing",
			logx.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}
