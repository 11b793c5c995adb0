// Package registry tracks the set of open client connections.
//
// The registry is the only state shared between connection sessions, the
// input forwarder and the ingress API. Every mutation and every snapshot
// goes through one RWMutex so Add, Remove and Enumerate are linearizable;
// sending to a connection always happens on a snapshot, outside the lock.
package registry

import (
	"cmp"
	"slices"
	"sync"
)

// Conn is one live client connection as seen by the registry and the
// dispatcher. Send and Close must not block.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type entry struct {
	conn Conn
	seq  uint64 // insertion order
}

type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*entry
	nextSeq uint64
	hook    func(count int)
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
	}
}

// SetCountHook registers a callback invoked with the new connection count
// after every membership change. The hook runs under the registry's write
// lock, so calls arrive in mutation order; it must not call back into the
// registry. Must be called before the registry is shared.
func (r *Registry) SetCountHook(fn func(count int)) {
	r.hook = fn
}

// Add inserts conn. Re-adding a known ID swaps the handle in place and
// keeps its original position.
func (r *Registry) Add(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[conn.ID()]; ok {
		e.conn = conn
	} else {
		r.conns[conn.ID()] = &entry{conn: conn, seq: r.nextSeq}
		r.nextSeq++
	}
	r.notify(len(r.conns))
}

// Remove deletes id and reports whether it was present. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		r.notify(len(r.conns))
	}
	return ok
}

// Enumerate returns a snapshot of the registered connections in insertion
// order. The slice is owned by the caller.
func (r *Registry) Enumerate() []Conn {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.conns))
	for _, e := range r.conns {
		entries = append(entries, *e)
	}
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]Conn, len(entries))
	for i, e := range entries {
		out[i] = e.conn
	}
	return out
}

func (r *Registry) Get(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) notify(n int) {
	if r.hook != nil {
		r.hook(n)
	}
}
