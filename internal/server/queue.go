package server

import "sync"

// outbox is a peer's outbound queue: unbounded and FIFO, with many producers
// and one consumer. Pushing never blocks.
type outbox struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	ready  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

// push enqueues msg and reports false if the outbox was already closed.
func (q *outbox) push(msg Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	q.signal()
	return true
}

// drain takes everything queued so far. open is false once the outbox has
// been closed; pending items are discarded at that point.
func (q *outbox) drain() (batch []Message, open bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false
	}
	batch = q.items
	q.items = nil
	return batch, true
}

// close is idempotent.
func (q *outbox) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.signal()
}

func (q *outbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *outbox) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
