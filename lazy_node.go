package lodestore

import "sync/atomic"

// LazyNode is a shared handle to a node that is either resolved (payload
// present) or a placeholder carrying only its address. The payload is an
// atomically swappable pointer to an immutable snapshot: readers always see
// a consistent value while a writer may install a new one. Handles are
// shared by pointer; cache identity is the encoded address, never the
// payload content.
type LazyNode[T any] struct {
	data    atomic.Pointer[T]
	addr    NodeAddr
	version uint16
	decay   atomic.Uint32
	persist atomic.Bool
}

func newResolvedNode[T any](addr NodeAddr, data *T) *LazyNode[T] {
	n := newPlaceholderNode[T](addr)
	n.data.Store(data)
	return n
}

func newPlaceholderNode[T any](addr NodeAddr) *LazyNode[T] {
	n := &LazyNode[T]{addr: addr, version: addr.Version}
	n.persist.Store(true)
	return n
}

// Data returns the current payload snapshot, nil for a placeholder.
func (n *LazyNode[T]) Data() *T {
	return n.data.Load()
}

// SetData installs a new payload snapshot. Concurrent readers holding the
// previous snapshot are unaffected.
func (n *LazyNode[T]) SetData(data *T) {
	n.data.Store(data)
}

func (n *LazyNode[T]) IsResolved() bool {
	return n.data.Load() != nil
}

// Addr returns the originating file address. It is kept after resolution so
// the node can later be re-serialized to the same or a new location.
func (n *LazyNode[T]) Addr() NodeAddr {
	return n.addr
}

func (n *LazyNode[T]) Version() uint16 {
	return n.version
}

// NeedsFlush reports whether the in-memory state still has to be written
// back by the external persist path. New handles start dirty.
func (n *LazyNode[T]) NeedsFlush() bool {
	return n.persist.Load()
}

func (n *LazyNode[T]) SetNeedsFlush(v bool) {
	n.persist.Store(v)
}

// Decay bumps the decay counter. The counter is bookkeeping for a future
// eviction policy; the load path never consults it.
func (n *LazyNode[T]) Decay() uint32 {
	return n.decay.Add(1)
}

func (n *LazyNode[T]) DecayCount() uint32 {
	return n.decay.Load()
}
