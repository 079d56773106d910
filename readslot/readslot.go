// Package readslot implements the single-slot rendezvous buffer a
// Subscriber's blocking Read drains, when no receive callback is
// installed.
package readslot

import (
	"context"
	"sync"
	"time"
)

// Slot is a single-item buffer guarded by a lock and condition variable.
// Writers (transport goroutines) overwrite unconditionally: if the reader
// has not drained the previous payload, it is lost, silently — a receive
// callback, not Slot, is the intended high-rate path.
type Slot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	timeUs int64
	filled bool
}

// New returns an empty Slot.
func New() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish overwrites the slot's contents and wakes any waiting reader.
func (s *Slot) Publish(buf []byte, timeUs int64) {
	s.mu.Lock()
	s.buf = buf
	s.timeUs = timeUs
	s.filled = true
	s.mu.Unlock()
	s.cond.Signal()
}

// Read drains the slot per the timeout semantics: timeout<0 waits
// indefinitely, timeout==0 polls without blocking, timeout>0 waits up to
// that long. ctx is the idiomatic Go cancellation path added alongside
// (not instead of) the millisecond timeout — a cancelled context behaves
// like an elapsed timeout.
func (s *Slot) Read(ctx context.Context, timeout time.Duration) (buf []byte, timeUs int64, ok bool) {
	if timeout == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.drainLocked()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// sync.Cond has no native deadline; wake any blocked Wait when ctx
	// is done by broadcasting from a goroutine tied to ctx's lifetime.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-stop:
		}
	}()
	defer close(stop)

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.filled {
		select {
		case <-ctx.Done():
			return nil, 0, false
		default:
		}
		s.cond.Wait()
	}
	return s.drainLocked()
}

// drainLocked returns the current contents if filled, clearing filled.
// Must be called with s.mu held.
func (s *Slot) drainLocked() ([]byte, int64, bool) {
	if !s.filled {
		return nil, 0, false
	}
	buf, timeUs := s.buf, s.timeUs
	s.buf = nil
	s.filled = false
	return buf, timeUs, true
}
