// Package connection tracks the set of publishers a subscriber currently
// knows about, and fires connection lifecycle events as that set changes.
package connection

import (
	"sync"

	"github.com/ecal-sub/ecal/datatype"
	"github.com/ecal-sub/ecal/layer"
)

// Key uniquely identifies a connected publisher. It is a comparable
// struct, usable directly as a Go map key.
type Key struct {
	HostName string
	PID      int
	EntityID string
}

// LayerState tracks one direction of one layer for one publisher, as
// reported by that publisher's own publication message. Active here
// reflects the publisher's self-reported state, not the subscriber's
// own per-layer receipt latch (that lives on Subscriber, since it must
// hold even before this publisher is known).
type LayerState struct {
	ReadEnabled  bool
	WriteEnabled bool
	Active       bool
}

// PublisherState is the value held per publisher in the Table.
type PublisherState struct {
	DataTypeInfo datatype.Information
	LayerStates  map[layer.Kind]LayerState
	Active       bool
}

// EventKind enumerates the lifecycle transitions a Table can fire.
type EventKind int

const (
	Connected EventKind = iota
	UpdateConnection
	Disconnected
)

// Event describes one lifecycle transition, ready to be handed to a
// callback.EventKind dispatcher.
type Event struct {
	Kind    EventKind
	Key     Key
	State   PublisherState
	ActiveN int
}

// Table is the per-subscriber map of known publishers. Guarded by its own
// RWMutex per the concurrency model's connection_lock; events are fired
// after the lock is released.
type Table struct {
	mu      sync.RWMutex
	entries map[Key]PublisherState
	activeN int
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[Key]PublisherState)}
}

// ApplyPublication applies a publication-info update. The second
// consecutive apply for a given key is what flips it active=true (first
// touch is probation, debouncing discovery races where the first
// broadcast may be stale or incomplete); data_type_info and layer_states
// are overwritten unconditionally on every apply.
func (t *Table) ApplyPublication(key Key, dti datatype.Information, states map[layer.Kind]LayerState) *Event {
	t.mu.Lock()

	existing, present := t.entries[key]
	var isNew, isUpdated bool
	switch {
	case !present:
		existing = PublisherState{Active: false}
	case !existing.Active:
		existing.Active = true
		isNew = true
	default:
		isUpdated = true
	}
	existing.DataTypeInfo = dti
	existing.LayerStates = states
	t.entries[key] = existing

	t.activeN = t.countActiveLocked()
	activeN := t.activeN
	t.mu.Unlock()

	switch {
	case isNew:
		return &Event{Kind: Connected, Key: key, State: existing, ActiveN: activeN}
	case isUpdated:
		return &Event{Kind: UpdateConnection, Key: key, State: existing, ActiveN: activeN}
	default:
		return nil
	}
}

// RemovePublication erases key from the table. It returns a Disconnected
// event iff this removal drops the active-publisher count to zero.
func (t *Table) RemovePublication(key Key) *Event {
	t.mu.Lock()
	_, present := t.entries[key]
	wasNonEmpty := t.activeN > 0
	delete(t.entries, key)
	t.activeN = t.countActiveLocked()
	activeN := t.activeN
	t.mu.Unlock()

	if present && wasNonEmpty && activeN == 0 {
		return &Event{Kind: Disconnected, Key: key, ActiveN: 0}
	}
	return nil
}

// Lookup returns the current state for key.
func (t *Table) Lookup(key Key) (PublisherState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.entries[key]
	return state, ok
}

// ActiveCount returns the number of publishers currently active.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.activeN
}

// Snapshot returns a copy of all known publishers, for registration
// snapshot emission.
func (t *Table) Snapshot() map[Key]PublisherState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[Key]PublisherState, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

func (t *Table) countActiveLocked() int {
	n := 0
	for _, v := range t.entries {
		if v.Active {
			n++
		}
	}
	return n
}
