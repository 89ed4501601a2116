package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startTestHub creates a hub behind an httptest server. The returned URL is
// the ws:// form of the /ws endpoint.
func startTestHub(t *testing.T, customize func(cfg *Config), opts ...Option) (*Hub, string) {
	t.Helper()

	cfg := NewConfig()
	cfg.PingInterval = time.Second
	cfg.PongWait = 2 * time.Second
	cfg.WriteWait = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	if customize != nil {
		customize(cfg)
	}

	hub := NewHub(*cfg, opts...)
	testServer := httptest.NewServer(hub.Routes())
	t.Cleanup(func() {
		_ = hub.closePeers(2 * time.Second)
		testServer.Close()
	})

	return hub, "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
}

// connectWebSocket dials url with a browser-like Origin header.
func connectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connectPeers dials n peers and waits until the hub has registered all of them.
func connectPeers(t *testing.T, hub *Hub, url string, n int) []*websocket.Conn {
	t.Helper()

	before := hub.PeerCount()
	conns := make([]*websocket.Conn, n)
	for i := range conns {
		conns[i] = connectWebSocket(t, url)
	}
	waitForPeerCount(t, hub, before+n)
	return conns
}

func waitForPeerCount(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.PeerCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d registered peers, got %d", want, hub.PeerCount())
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("Failed to send %q: %v", text, err)
	}
}

// expectMessage reads one frame and checks its type and payload.
func expectMessage(t *testing.T, conn *websocket.Conn, wantType int, want string) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected message %q, got error: %v", want, err)
	}
	if msgType != wantType {
		t.Errorf("Expected frame type %d, got %d", wantType, msgType)
	}
	if string(data) != want {
		t.Errorf("Expected payload %q, got %q", want, string(data))
	}
}

// expectNoMessage verifies that no data frame arrives within timeout.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Errorf("Expected no message, got %q", string(data))
	}
}

func closeWebSocket(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		t.Logf("close frame error: %v", err)
	}
	_ = conn.Close()
}

// recordingEvents captures lifecycle events for assertions.
type recordingEvents struct {
	NopEvents

	mu        sync.Mutex
	joined    []PeerID
	left      map[PeerID]error
	received  int
	handshake int
	accept    int
	dropped   int
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{left: make(map[PeerID]error)}
}

func (r *recordingEvents) AcceptFailed(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accept++
}

func (r *recordingEvents) HandshakeFailed(string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handshake++
}

func (r *recordingEvents) PeerJoined(id PeerID, _ string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, id)
}

func (r *recordingEvents) PeerLeft(id PeerID, _ string, cause error, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left[id] = cause
}

func (r *recordingEvents) MessageReceived(PeerID, Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
}

func (r *recordingEvents) Broadcast(_ PeerID, _, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped += dropped
}

func (r *recordingEvents) joinedIDs() []PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PeerID(nil), r.joined...)
}

func (r *recordingEvents) leftCause(id PeerID) (error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cause, ok := r.left[id]
	return cause, ok
}

func (r *recordingEvents) counts() (received, handshake, accept int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received, r.handshake, r.accept
}
