package server

// Events receives lifecycle notifications from the hub. Implementations must
// be safe for concurrent use and must not block; they are called from
// connection goroutines, never while the registry lock is held.
type Events interface {
	Listening(addr string)
	AcceptFailed(err error)
	HandshakeFailed(addr string, err error)
	PeerJoined(id PeerID, addr string, peers int)
	PeerLeft(id PeerID, addr string, cause error, peers int)
	MessageReceived(id PeerID, msg Message)
	Broadcast(from PeerID, delivered, dropped int)
}

// NopEvents discards every notification.
type NopEvents struct{}

func (NopEvents) Listening(string)                    {}
func (NopEvents) AcceptFailed(error)                  {}
func (NopEvents) HandshakeFailed(string, error)       {}
func (NopEvents) PeerJoined(PeerID, string, int)      {}
func (NopEvents) PeerLeft(PeerID, string, error, int) {}
func (NopEvents) MessageReceived(PeerID, Message)     {}
func (NopEvents) Broadcast(PeerID, int, int)          {}

type fanoutEvents []Events

// MultiEvents forwards each notification to every sink in order.
func MultiEvents(sinks ...Events) Events {
	out := make(fanoutEvents, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (f fanoutEvents) Listening(addr string) {
	for _, e := range f {
		e.Listening(addr)
	}
}

func (f fanoutEvents) AcceptFailed(err error) {
	for _, e := range f {
		e.AcceptFailed(err)
	}
}

func (f fanoutEvents) HandshakeFailed(addr string, err error) {
	for _, e := range f {
		e.HandshakeFailed(addr, err)
	}
}

func (f fanoutEvents) PeerJoined(id PeerID, addr string, peers int) {
	for _, e := range f {
		e.PeerJoined(id, addr, peers)
	}
}

func (f fanoutEvents) PeerLeft(id PeerID, addr string, cause error, peers int) {
	for _, e := range f {
		e.PeerLeft(id, addr, cause, peers)
	}
}

func (f fanoutEvents) MessageReceived(id PeerID, msg Message) {
	for _, e := range f {
		e.MessageReceived(id, msg)
	}
}

func (f fanoutEvents) Broadcast(from PeerID, delivered, dropped int) {
	for _, e := range f {
		e.Broadcast(from, delivered, dropped)
	}
}
