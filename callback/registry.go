// Package callback holds the receive callback (at most one) and the
// per-event-kind event callbacks a Subscriber dispatches through.
package callback

import (
	"sync"

	"github.com/ecal-sub/ecal/datatype"
	"github.com/ecal-sub/ecal/topic"
)

// ReceiveData is the payload shape handed to an installed receive
// callback.
type ReceiveData struct {
	Buf       []byte
	Size      int
	FilterID  int64
	TimeUs    int64
	SendClock int64
}

// ReceiveFunc is the shape of an installed receive callback. Called
// synchronously on the transport goroutine that produced the sample,
// while Registry's receive lock is held — installed callbacks are
// serialized across all transport layers for a given subscriber.
type ReceiveFunc func(info topic.Identity, dti datatype.Information, data ReceiveData)

// EventKind enumerates the four event kinds a Subscriber can dispatch.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventUpdateConnection
	EventDropped
)

// ConnectionEvent is the payload shape handed to an installed event
// callback.
type ConnectionEvent struct {
	Kind              EventKind
	TimeUs            int64
	Clock             int64 // 0 except EventDropped, where it is the clock at the gap
	PublisherEntityID string
	PublisherTypeInfo datatype.Information
}

// EventFunc is the shape of an installed event callback. Called under
// Registry's event lock; callbacks must not call back into Subscriber
// mutators — that is a documented deadlock hazard, not guarded against
// at runtime.
type EventFunc func(topicName string, e ConnectionEvent)

// Registry holds at most one receive callback and at most one callback
// per EventKind, each guarded by its own lock per the two-lock model
// (receive_cb_lock, event_cb_lock) so delivery never blocks on
// unrelated event-map mutation.
type Registry struct {
	recvMu sync.Mutex
	recv   ReceiveFunc

	eventMu sync.Mutex
	events  map[EventKind]EventFunc
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{events: make(map[EventKind]EventFunc)}
}

// SetReceive replaces any existing receive callback. Passing nil clears
// it, causing subsequent samples to route to the ReadSlot instead.
func (r *Registry) SetReceive(fn ReceiveFunc) {
	r.recvMu.Lock()
	defer r.recvMu.Unlock()
	r.recv = fn
}

// Receive returns the installed receive callback, or nil.
func (r *Registry) Receive() ReceiveFunc {
	r.recvMu.Lock()
	defer r.recvMu.Unlock()
	return r.recv
}

// LockReceive and UnlockReceive expose the receive lock directly so the
// ingress pipeline can hold it across dequeue, classification and
// delivery, per the "receive-callback lock held across the entire
// pipeline" contract in §4.2/§5.
func (r *Registry) LockReceive()   { r.recvMu.Lock() }
func (r *Registry) UnlockReceive() { r.recvMu.Unlock() }

// ReceiveLocked returns the installed receive callback without taking
// recvMu. The caller must already hold it via LockReceive — this exists
// solely for the ingress pipeline, which cannot call Receive() itself
// without self-deadlocking on the non-reentrant mutex it's already
// holding.
func (r *Registry) ReceiveLocked() ReceiveFunc { return r.recv }

// SetEvent installs fn as the callback for kind, replacing any existing
// one. Passing nil clears it.
func (r *Registry) SetEvent(kind EventKind, fn EventFunc) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	if fn == nil {
		delete(r.events, kind)
		return
	}
	r.events[kind] = fn
}

// Fire dispatches event to topicName's installed callback for e.Kind, if
// any, under the event lock.
func (r *Registry) Fire(topicName string, e ConnectionEvent) {
	r.eventMu.Lock()
	fn := r.events[e.Kind]
	defer r.eventMu.Unlock()
	if fn != nil {
		fn(topicName, e)
	}
}

// Clear removes the receive callback and every event callback. Called at
// subscriber stop.
func (r *Registry) Clear() {
	r.SetReceive(nil)

	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	r.events = make(map[EventKind]EventFunc)
}
