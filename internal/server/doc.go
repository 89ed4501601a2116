// Package server implements the relay hub: a single shared room where every
// message a WebSocket peer sends is delivered to every other connected peer.
//
// The implementation is organized into specialized files for the peer
// registry, per-connection handling, the accept loop, configuration, origin
// checks, observability sinks and HTTP routing.
package server
