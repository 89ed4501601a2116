// Package server constructs the HTTP service the hub runs on, with
// production timeouts for the pre-upgrade phase.
package server

import (
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server for the given handler.
// The timeouts only govern plain HTTP requests and the upgrade handshake;
// upgraded connections manage their own deadlines.
func CreateServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
