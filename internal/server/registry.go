// Package server keeps the peer registry: the single piece of shared mutable
// state, mapping each live connection to its outbound queue.
package server

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps registered peers to their outbound queues. The mutex is held
// for a single map operation or a snapshot copy and never across I/O.
type Registry struct {
	mu    sync.Mutex
	peers map[PeerID]*outbox
}

type registryEntry struct {
	id  PeerID
	out *outbox
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[PeerID]*outbox)}
}

// Insert registers out under id. A second insert for a live id is rejected.
func (r *Registry) Insert(id PeerID, out *outbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; exists {
		return fmt.Errorf("insert %s: %w", id, ErrDuplicatePeer)
	}
	r.peers[id] = out
	return nil
}

// Remove deregisters id and closes its outbox, reporting whether an entry
// existed. Removing an unknown id is a no-op.
func (r *Registry) Remove(id PeerID) bool {
	r.mu.Lock()
	out, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	r.mu.Unlock()

	// Close after releasing the lock
	if ok {
		out.close()
	}
	return ok
}

// RemoveAll deregisters every peer and closes their outboxes.
func (r *Registry) RemoveAll() int {
	r.mu.Lock()
	removed := make([]*outbox, 0, len(r.peers))
	for id, out := range r.peers {
		removed = append(removed, out)
		delete(r.peers, id)
	}
	r.mu.Unlock()

	for _, out := range removed {
		out.close()
	}
	return len(removed)
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// IDs returns the registered peer ids in sorted order.
func (r *Registry) IDs() []PeerID {
	r.mu.Lock()
	ids := make([]PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) snapshot() []registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]registryEntry, 0, len(r.peers))
	for id, out := range r.peers {
		entries = append(entries, registryEntry{id: id, out: out})
	}
	return entries
}

// Broadcast enqueues msg for every registered peer except from. A peer whose
// outbox closed after the snapshot was taken counts as dropped; that race with
// the peer's own teardown is not an error.
func (r *Registry) Broadcast(from PeerID, msg Message) (delivered, dropped int) {
	for _, entry := range r.snapshot() {
		if entry.id == from {
			continue
		}
		if entry.out.push(msg) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}
