package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// countingEvents counts PeerLeft calls.
type countingEvents struct {
	NopEvents

	mu    sync.Mutex
	left  int
	cause error
}

func (c *countingEvents) PeerLeft(_ PeerID, _ string, cause error, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left++
	c.cause = cause
}

func (c *countingEvents) snapshot() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left, c.cause
}

// serverSideConn returns the server end of a fresh WebSocket connection and
// the client end dialed to it.
func serverSideConn(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		accepted <- conn
	}))
	t.Cleanup(ts.Close)

	client := connectWebSocket(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	select {
	case conn := <-accepted:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("Server side of the connection never arrived")
		return nil, nil
	}
}

func TestTerminateRunsOnce(t *testing.T) {
	events := &countingEvents{}
	hub := NewHub(*NewConfig(), WithEvents(events))
	conn, client := serverSideConn(t)

	p := newPeer(hub, conn, "test")
	if err := hub.registry.Insert(p.id, p.out); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	bystander := newOutbox()
	if err := hub.registry.Insert("bystander", bystander); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.terminate(ErrPeerRemoved)
		}()
	}
	wg.Wait()
	p.terminate(errors.New("late cause"))

	left, cause := events.snapshot()
	if left != 1 {
		t.Errorf("Expected exactly one PeerLeft, got %d", left)
	}
	if !errors.Is(cause, ErrPeerRemoved) {
		t.Errorf("Expected the first cause to be reported, got %v", cause)
	}
	if ids := hub.Peers(); len(ids) != 1 || ids[0] != "bystander" {
		t.Errorf("Expected only the bystander to remain, got %v", ids)
	}
	if !bystander.push(TextMessage("still open")) {
		t.Error("Expected the bystander's outbox to stay open")
	}

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("Expected the client to observe the closed transport")
	}
}

func TestRemovedPeerWriterSendsGoingAway(t *testing.T) {
	events := &countingEvents{}
	hub := NewHub(*NewConfig(), WithEvents(events))
	conn, client := serverSideConn(t)

	p := newPeer(hub, conn, "test")
	if err := hub.registry.Insert(p.id, p.out); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.terminate(p.relay(t.Context()))
	}()

	p.out.push(TextMessage("before removal"))
	expectMessage(t, client, websocket.TextMessage, "before removal")

	hub.registry.Remove(p.id)
	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if _, _, err := client.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not finish after removal")
	}
	if _, cause := events.snapshot(); !isGracefulDisconnect(cause) {
		t.Errorf("Expected a graceful cause after removal, got %v", cause)
	}
}

func TestReadErrorClassification(t *testing.T) {
	p := &peer{hub: NewHub(*NewConfig())}
	p.log = p.hub.log

	tests := []struct {
		name     string
		err      error
		graceful bool
		is       error
	}{
		{name: "normal close", err: &websocket.CloseError{Code: websocket.CloseNormalClosure}, graceful: true, is: ErrPeerClosed},
		{name: "going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, graceful: true, is: ErrPeerClosed},
		{name: "policy close", err: &websocket.CloseError{Code: websocket.ClosePolicyViolation}, graceful: true, is: ErrPeerClosed},
		{name: "abnormal closure", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, graceful: false},
		{name: "read limit", err: websocket.ErrReadLimit, graceful: false, is: websocket.ErrReadLimit},
		{name: "eof", err: io.ErrUnexpectedEOF, graceful: false, is: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.readError(tt.err)
			if got == nil {
				t.Fatal("readError returned nil")
			}
			if isGracefulDisconnect(got) != tt.graceful {
				t.Errorf("isGracefulDisconnect(%v) = %v, want %v", got, !tt.graceful, tt.graceful)
			}
			if tt.is != nil && !errors.Is(got, tt.is) {
				t.Errorf("Expected %v to wrap %v", got, tt.is)
			}
		})
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{websocket.ErrCloseSent, true},
		{errors.New("write tcp 127.0.0.1:1->127.0.0.1:2: use of closed network connection"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("i/o timeout"), false},
	}
	for _, tt := range tests {
		if got := isExpectedCloseError(tt.err); got != tt.want {
			t.Errorf("isExpectedCloseError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
