// Package dedup suppresses cross-layer duplicate deliveries by
// remembering the most recently seen payload hashes.
package dedup

import (
	"sync"

	"github.com/ecal-sub/ecal/pkg/buffer"
)

// Window is the bounded FIFO depth: samples carrying a hash that fell out
// of the window more than Window pushes ago are treated as new again.
const Window = 64

// Queue is a bounded FIFO of recently seen payload hashes. The FIFO
// ordering is an adapted circular ring buffer (github.com/ecal-sub/ecal's
// pkg/buffer, generalized from []byte to uint64); membership is a plain
// map kept in lockstep via the ring buffer's overflow callback, so Seen
// stays O(1) instead of O(window).
//
// Order of operations under the lock: probe membership, then if absent
// push and trim.
type Queue struct {
	mu       sync.Mutex
	ring     buffer.Buffer[uint64]
	resident map[uint64]struct{}
}

// New returns an empty Queue of depth Window.
func New() *Queue {
	q := &Queue{resident: make(map[uint64]struct{}, Window)}

	ring, err := buffer.NewCircularBuffer[uint64](
		Window,
		buffer.WithOverflowPolicy[uint64](buffer.DropOldest),
		buffer.WithDropCallback[uint64](func(hash uint64) {
			delete(q.resident, hash)
		}),
	)
	if err != nil {
		// Window is a compile-time constant > 0; NewCircularBuffer only
		// fails on invalid capacity, which cannot happen here.
		panic("dedup: unexpected buffer construction failure: " + err.Error())
	}
	q.ring = ring
	return q
}

// CheckAndAdd reports whether hash was already present in the window. If
// it was absent, hash is pushed and the queue is trimmed to Window before
// returning.
func (q *Queue) CheckAndAdd(hash uint64) (duplicate bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, present := q.resident[hash]; present {
		return true
	}

	q.resident[hash] = struct{}{}
	// Write triggers the overflow callback synchronously when full,
	// which evicts the oldest hash from q.resident before this returns.
	_ = q.ring.Write(hash)
	return false
}

// Len returns the number of hashes currently held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Size()
}
