// Package server wires HTTP handlers into a ServeMux for the relay hub via
// routing helpers.
package server

import "net/http"

// Routes returns an HTTP ServeMux with all hub routes. The WebSocket endpoint
// is served on /ws and, for upgrade requests, on the root path.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.RootHandler)
	mux.HandleFunc("/ws", h.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}
