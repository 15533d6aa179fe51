package concurrency

import "sync/atomic"

// StateMap is a lock-free hash map with a fixed bucket count, buckets being
// singly-linked lists manipulated through atomic pointers. It backs
// per-client assembler state: the engine guarantees at-most-one concurrent
// feed per client id, so per-entry locking is unnecessary, but a shared
// concurrent map still lets lookups from different clients proceed without
// contending on a single mutex.
type StateMap[K comparable, V any] struct {
	buckets []atomic.Pointer[stateNode[K, V]]
	mask    uint64
	hasher  func(K) uint64
}

type stateNode[K comparable, V any] struct {
	key  K
	val  atomic.Pointer[stateBox[V]]
	next atomic.Pointer[stateNode[K, V]]
}

type stateBox[V any] struct{ v V }

// NewStateMap creates a map with bucket count rounded up to the next power
// of two.
func NewStateMap[K comparable, V any](buckets uint64, hasher func(K) uint64) *StateMap[K, V] {
	if buckets < 2 {
		buckets = 2
	}
	n := uint64(1)
	for n < buckets {
		n <<= 1
	}
	return &StateMap[K, V]{
		buckets: make([]atomic.Pointer[stateNode[K, V]], n),
		mask:    n - 1,
		hasher:  hasher,
	}
}

// NewClientStateMap creates a map keyed by client ID, the shape
// internal/httpassembler uses for its per-client parser state.
func NewClientStateMap[V any](buckets uint64) *StateMap[uint64, V] {
	return NewStateMap[uint64, V](buckets, func(k uint64) uint64 {
		// Fibonacci hashing spreads sequential client IDs across buckets.
		return k * 11400714819323198485
	})
}

func (m *StateMap[K, V]) bucketIndex(key K) uint64 {
	return m.hasher(key) & m.mask
}

// Load returns the value for key if present.
func (m *StateMap[K, V]) Load(key K) (V, bool) {
	var zero V
	b := &m.buckets[m.bucketIndex(key)]
	for n := b.Load(); n != nil; n = n.next.Load() {
		if n.key == key {
			vb := n.val.Load()
			if vb == nil {
				return zero, false
			}
			return vb.v, true
		}
	}
	return zero, false
}

// Store sets the value for key, inserting if absent.
func (m *StateMap[K, V]) Store(key K, value V) {
	idx := m.bucketIndex(key)
	head := &m.buckets[idx]
	for {
		for n := head.Load(); n != nil; n = n.next.Load() {
			if n.key == key {
				n.val.Store(&stateBox[V]{v: value})
				return
			}
		}
		newNode := &stateNode[K, V]{key: key}
		newNode.val.Store(&stateBox[V]{v: value})
		oldHead := head.Load()
		newNode.next.Store(oldHead)
		if head.CompareAndSwap(oldHead, newNode) {
			return
		}
	}
}

// LoadOrStore returns the existing value if present, else stores and
// returns the given value.
func (m *StateMap[K, V]) LoadOrStore(key K, value V) (V, bool) {
	if v, ok := m.Load(key); ok {
		return v, true
	}
	m.Store(key, value)
	return value, false
}

// Delete removes the key if present. Called when the engine guarantees no
// further Feed calls will arrive for a disconnected client.
func (m *StateMap[K, V]) Delete(key K) bool {
	idx := m.bucketIndex(key)
	head := &m.buckets[idx]
	prevPtr := head
	n := prevPtr.Load()
	for n != nil {
		next := n.next.Load()
		if n.key == key {
			n.val.Store(nil)
			_ = prevPtr.CompareAndSwap(n, next)
			return true
		}
		prevPtr = &n.next
		n = next
	}
	return false
}
