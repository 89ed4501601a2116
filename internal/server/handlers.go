// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades the request and serves the connection until it
// terminates. A failed upgrade never touches the registry; the upgrader has
// already written the HTTP error response.
func (h *Hub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	// Counted before the upgrade so Shutdown sees connections mid-handshake.
	h.wg.Add(1)
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.events.HandshakeFailed(r.RemoteAddr, err)
		return
	}

	h.serveConn(r.Context(), conn, r.RemoteAddr)
}

// RootHandler serves WebSocket upgrades on "/" and the health check otherwise.
func (h *Hub) RootHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.WebSocketHandler(w, r)
		return
	}
	HealthHandler(w, r)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay hub is running!")
}

// TestPageHandler serves a minimal browser client for manual testing.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
<title>Relay Hub Test</title>
<style>
  body { font-family: monospace; margin: 2em; }
  #log { border: 1px solid #999; height: 20em; overflow-y: auto; padding: .5em; }
  .in { color: #060; } .out { color: #036; } .sys { color: #777; }
</style>
</head>
<body>
<h1>Relay Hub Test</h1>
<div id="log"></div>
<form id="send"><input id="text" size="60" autocomplete="off" disabled> <button disabled>Send</button></form>
<script>
  const log = document.getElementById('log');
  const text = document.getElementById('text');
  const button = document.querySelector('#send button');
  function line(cls, msg) {
    const el = document.createElement('div');
    el.className = cls;
    el.textContent = msg;
    log.appendChild(el);
    log.scrollTop = log.scrollHeight;
  }
  const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(scheme + location.host + '/ws');
  ws.onopen = () => { text.disabled = button.disabled = false; line('sys', 'connected'); };
  ws.onclose = (e) => { text.disabled = button.disabled = true; line('sys', 'closed (' + e.code + ')'); };
  ws.onmessage = (e) => line('in', '< ' + e.data);
  document.getElementById('send').onsubmit = (e) => {
    e.preventDefault();
    if (text.value === '') return;
    ws.send(text.value);
    line('out', '> ' + text.value);
    text.value = '';
  };
</script>
</body>
</html>
`
